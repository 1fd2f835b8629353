package embedding

type Option func(*Options)

type Options struct {
	APIKey     string
	Model      string
	Dimensions int
	BaseURL    string
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

func WithDimensions(dim int) Option {
	return func(o *Options) {
		o.Dimensions = dim
	}
}

// WithBaseURL points an OpenAI-compatible provider at a self-hosted server.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

func NewOptions(opts ...Option) Options {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
