package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	FeedsFile        string
	Port             string
	CronSecret       string
	Timezone         string
	FetchConcurrency int
	FetchTimeout     int
	MaxItemsPerFeed  int

	// Image generation configuration
	GenerationAPIKey  string
	GenerationModel   string
	GenerationBaseURL string
	GenerationRetries int

	// Rate limiting
	RateLimitMax           int
	RateLimitWindowMinutes int

	// Application metadata
	UserAgent           string
	AllowStaticFallback bool
	FeedDump            bool
	Debug               bool
	Version             string
}
