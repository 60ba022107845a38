package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05.000"
)

// sink is the set of rotating files behind the global logger.
type sink struct {
	mu      sync.Mutex
	files   map[string]*lumberjack.Logger
	stop    chan struct{}
	stopped sync.Once
}

var current *sink

func initLogger(cfg Config) error {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.LevelFiles.IsEmpty() {
		cfg.LevelFiles = LevelFiles{{Level: INFO, Path: "logs/info.log"}}
	}
	for _, p := range cfg.LevelFiles.GetPaths() {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
	}

	if current != nil {
		current.close()
	}

	s := &sink{stop: make(chan struct{})}
	s.install(cfg)
	current = s

	go s.rotateDaily(cfg)
	return nil
}

// install builds fresh writers and swaps them into the global zerolog logger.
func (s *sink) install(cfg Config) {
	var mask uint8
	for _, e := range cfg.LevelFiles {
		mask |= 1 << parseLevel(e.Level)
	}

	files := make(map[string]*lumberjack.Logger, len(cfg.LevelFiles))
	writers := make([]io.Writer, 0, len(cfg.LevelFiles)+1)
	for _, e := range cfg.LevelFiles {
		lj := &lumberjack.Logger{
			Filename:   e.Path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		files[e.Level] = lj
		writers = append(writers, &levelWriter{
			level:      parseLevel(e.Level),
			configured: mask,
			Writer:     &zerolog.ConsoleWriter{Out: lj, TimeFormat: TimeFormat, NoColor: true},
		})
	}
	if cfg.Console {
		writers = append(writers, &zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: TimeFormat})
	}

	s.mu.Lock()
	old := s.files
	s.files = files
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Caller().Logger()
	s.mu.Unlock()

	for lvl, lj := range old {
		if err := lj.Close(); err != nil {
			log.Logger.Err(err).Str("level", lvl).Msg("close log file")
		}
	}
}

// levelWriter routes an event to its own level file. Levels without a file
// fall through to the info file, and fatal falls through to the error file.
type levelWriter struct {
	level      zerolog.Level
	configured uint8
	io.Writer
}

func (w *levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level == w.level {
		return w.Writer.Write(p)
	}
	unconfigured := w.configured&(1<<level) == 0
	switch {
	case w.level == zerolog.InfoLevel && unconfigured:
		return w.Writer.Write(p)
	case w.level == zerolog.ErrorLevel && level == zerolog.FatalLevel && unconfigured:
		return w.Writer.Write(p)
	}
	return len(p), nil
}

func (s *sink) rotateDaily(cfg Config) {
	for {
		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
		timer := time.NewTimer(midnight.Sub(now))
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.rotate(cfg)
		}
	}
}

func (s *sink) rotate(cfg Config) {
	s.mu.Lock()
	var failed bool
	for lvl, lj := range s.files {
		if err := lj.Rotate(); err != nil {
			failed = true
			log.Logger.Err(err).Str("level", lvl).Msg("rotate log file")
		}
	}
	s.mu.Unlock()
	if failed {
		s.install(cfg)
	}
	log.Logger.Info().Str("date", time.Now().Format(DateFormat)).Msg("log files rotated")
}

func (s *sink) close() {
	s.stopped.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	for lvl, lj := range s.files {
		if err := lj.Close(); err != nil {
			log.Logger.Err(err).Str("level", lvl).Msg("close log file")
		}
	}
	s.files = nil
}

func parseLevel(name string) zerolog.Level {
	switch name {
	case DEBUG, "DEBUG":
		return zerolog.DebugLevel
	case WARN, "WARN":
		return zerolog.WarnLevel
	case ERROR, "ERROR":
		return zerolog.ErrorLevel
	case FATAL, "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// L returns the global logger.
func L() zerolog.Logger {
	return log.Logger
}

// With returns a child logger carrying the given component name.
func With(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

func Info() *zerolog.Event {
	return log.Logger.Info()
}

func Debug() *zerolog.Event {
	return log.Logger.Debug()
}

func Warn() *zerolog.Event {
	return log.Logger.Warn()
}

func Error() *zerolog.Event {
	return log.Logger.Error()
}

func Fatal() *zerolog.Event {
	return log.Logger.Fatal()
}

func Err(err error) *zerolog.Event {
	return log.Logger.Err(err)
}

// Close stops rotation and closes all log files.
func Close() {
	if current != nil {
		current.close()
	}
}
