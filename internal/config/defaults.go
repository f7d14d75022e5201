package config

import "time"

// DefaultConfig returns the built-in configuration.
// Classification thresholds mirror the tuned production values; retune with
// care, the decision structure in classify assumes their relative ordering.
func DefaultConfig() Config {
	return Config{
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Queue: QueueConfig{
			PendingKey:        "docmill:jobs:pending",
			ProcessingKey:     "docmill:jobs:processing",
			DeadLetterKey:     "docmill:jobs:dead",
			ReceiptsKey:       "docmill:jobs:receipts",
			ClaimsKey:         "docmill:jobs:claims",
			MaxReceive:        5,
			VisibilityTimeout: 30 * time.Minute,
		},
		Buckets: BucketConfig{
			Source:   "source",
			Analysis: "analysis",
			Output:   "output",
		},
		Worker: WorkerConfig{
			Count:      5,
			PollWait:   20 * time.Second,
			LivenessIv: time.Second,
			StatusAddr: "127.0.0.1:8090",
		},
		Analysis: AnalysisConfig{
			ChunkSize:    5,
			Parallelism:  4,
			MaxAttempts:  3,
			RetryDelay:   2 * time.Second,
			PollInterval: 2 * time.Second,
			PollBudget:   300,
		},
		Vision: VisionConfig{
			Enabled:     true,
			APIKey:      "${OPENAI_API_KEY}",
			Model:       "gpt-4o",
			Concurrency: 5,
			Retries:     2,
			WaitBudget:  2 * time.Minute,
			RenderDPI:   200,
		},
		Classify: ClassifyConfig{
			TextRatioMax:    0.07,
			TextLenMax:      450,
			WordCountMax:    120,
			VarianceMin:     900,
			VarianceHigh:    9000,
			TextlessLen:     30,
			OCRTriggerLen:   25,
			OCRMinChars:     100,
			FailsafeTextLen: 700,
			FailsafeWords:   160,
			TesseractPath:   "tesseract",
		},
		Convert: ConvertConfig{
			SofficePath: "soffice",
		},
		MaxPages: 200,
	}
}
