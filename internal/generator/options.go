package generator

type Option func(*Options)

type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxHistory int
}

func WithAPIKey(key string) Option {
	return func(o *Options) {
		o.APIKey = key
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithMaxHistory caps how many history messages are sent with a turn.
func WithMaxHistory(n int) Option {
	return func(o *Options) {
		o.MaxHistory = n
	}
}

func NewOptions(opts ...Option) Options {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
