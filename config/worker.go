package config

import "time"

// WorkerConfig contains queue worker configuration.
type WorkerConfig struct {
	// VisibilityTimeout is the lease a worker holds on a message. It must
	// exceed the evaluator timeout so an abandoned evaluation never outlives
	// its lease and redelivers to a second worker mid-run.
	VisibilityTimeout time.Duration `env:"WORKER_VISIBILITY_TIMEOUT" envDefault:"10m"`

	// InterMessageDelay spaces out engine invocations within a drain cycle.
	InterMessageDelay time.Duration `env:"WORKER_INTER_MESSAGE_DELAY" envDefault:"1s"`

	// PollInterval is how often the background poller runs a drain cycle.
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"30s"`
}

// Sanitize applies guardrails, widening the visibility timeout when it does
// not cover the evaluator timeout.
func (w *WorkerConfig) Sanitize(e *EvaluatorConfig) {
	if w.VisibilityTimeout <= 0 {
		w.VisibilityTimeout = 10 * time.Minute
	}
	if w.InterMessageDelay < 0 {
		w.InterMessageDelay = 0
	}
	if w.PollInterval <= 0 {
		w.PollInterval = 30 * time.Second
	}
	if e != nil && w.VisibilityTimeout <= e.Timeout {
		w.VisibilityTimeout = e.Timeout + time.Minute
	}
}

// EvaluatorConfig contains external analysis engine configuration.
type EvaluatorConfig struct {
	// BaseURL is the engine endpoint.
	BaseURL string `env:"EVALUATOR_BASE_URL" envDefault:"http://localhost:9090"`

	// Timeout bounds one evaluation; it must stay below the worker's
	// visibility timeout.
	Timeout time.Duration `env:"EVALUATOR_TIMEOUT" envDefault:"5m"`

	// MaxTurns caps the engine's processing turns per evaluation.
	MaxTurns int `env:"EVALUATOR_MAX_TURNS" envDefault:"50"`

	// ExpectedItems is the rubric criterion count a returned document must
	// match exactly. Zero disables the length check.
	ExpectedItems int `env:"EVALUATOR_EXPECTED_ITEMS" envDefault:"0"`
}

// Sanitize applies guardrails to evaluator configuration values.
func (e *EvaluatorConfig) Sanitize() {
	if e.Timeout <= 0 {
		e.Timeout = 5 * time.Minute
	}
	if e.MaxTurns <= 0 {
		e.MaxTurns = 50
	}
	if e.ExpectedItems < 0 {
		e.ExpectedItems = 0
	}
}
