package openai

// Config contains the adapter configuration. Env names are relative; the
// config package applies a per-instance prefix (OPENAI_, COMPAT_) so the
// same adapter can serve both the hosted API and any OpenAI-compatible
// endpoint.
type Config struct {
	Name         string `env:"PROVIDER_NAME"`
	APIKey       string `env:"API_KEY"`
	BaseURL      string `env:"BASE_URL"      envDefault:"https://api.openai.com/v1"`
	Timeout      int    `env:"TIMEOUT"       envDefault:"60"`
	MaxRetries   int    `env:"MAX_RETRIES"   envDefault:"0"`
	DefaultModel string `env:"DEFAULT_MODEL" envDefault:"gpt-4-turbo"`
}
