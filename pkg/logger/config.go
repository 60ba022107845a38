package logger

const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
	FATAL = "fatal"
)

// LevelFileEntry binds one level to one file.
type LevelFileEntry struct {
	Level string
	Path  string
}

type LevelFiles []LevelFileEntry

func (lf LevelFiles) IsEmpty() bool {
	return len(lf) == 0
}

func (lf LevelFiles) GetPaths() []string {
	paths := make([]string, 0, len(lf))
	for _, e := range lf {
		paths = append(paths, e.Path)
	}
	return paths
}

type Config struct {
	LevelFiles LevelFiles
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Level      string
	Compress   bool
	Console    bool
}

func DefaultConfig() Config {
	return Config{
		LevelFiles: LevelFiles{
			{Level: ERROR, Path: "logs/err.log"},
			{Level: INFO, Path: "logs/info.log"},
		},
		MaxSize:    10,
		MaxBackups: 30,
		MaxAge:     7,
		Level:      INFO,
	}
}

type Builder struct {
	config   Config
	explicit bool
}

func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) SetMaxSize(size int) *Builder {
	b.config.MaxSize = size
	return b
}

func (b *Builder) SetMaxBackups(backups int) *Builder {
	b.config.MaxBackups = backups
	return b
}

func (b *Builder) SetMaxAge(days int) *Builder {
	b.config.MaxAge = days
	return b
}

func (b *Builder) SetLevel(level string) *Builder {
	b.config.Level = level
	return b
}

func (b *Builder) EnableCompression(enable bool) *Builder {
	b.config.Compress = enable
	return b
}

func (b *Builder) EnableConsoleOutput(enable bool) *Builder {
	b.config.Console = enable
	return b
}

// AddLevelFile replaces the default files on first use.
func (b *Builder) AddLevelFile(level, path string) *Builder {
	if !b.explicit {
		b.config.LevelFiles = nil
		b.explicit = true
	}
	b.config.LevelFiles = append(b.config.LevelFiles, LevelFileEntry{Level: level, Path: path})
	return b
}

// SetDir points the default err/info files at dir.
func (b *Builder) SetDir(dir string) *Builder {
	if dir == "" {
		return b
	}
	b.config.LevelFiles = LevelFiles{
		{Level: ERROR, Path: dir + "/err.log"},
		{Level: INFO, Path: dir + "/info.log"},
	}
	b.explicit = true
	return b
}

func (b *Builder) Build() error {
	return initLogger(b.config)
}
