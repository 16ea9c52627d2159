package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	BoardsDir         string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Momentum tuning
	MomentumTargetCount int
	MomentumHalfLifeMs  int
	MomentumCompression string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
