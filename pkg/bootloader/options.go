package bootloader

// Progress reports transfer progress at each 10% boundary.
type Progress struct {
	Percent      int
	BytesWritten int
	Total        int
}

// Logf receives operator-facing protocol messages.
type Logf func(format string, args ...interface{})

// Config holds the programmer configuration.
type Config struct {
	// ChunkSize is the payload size of each data packet.
	ChunkSize int
	// ChunkAttempts is the number of sends per chunk before giving up.
	ChunkAttempts int
	// OnProgress is called once per crossed 10% boundary.
	OnProgress func(Progress)
	// Logf receives retry notices.
	Logf Logf
}

func defaultConfig() Config {
	return Config{
		ChunkSize:     16,
		ChunkAttempts: 5,
	}
}

// Option configures a Programmer.
type Option func(*Config)

// WithChunkSize sets the data packet payload size.
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 && size <= MaxPayload {
			c.ChunkSize = size
		}
	}
}

// WithChunkAttempts sets how many times a chunk is sent before failing.
func WithChunkAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.ChunkAttempts = n
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn func(Progress)) Option {
	return func(c *Config) {
		c.OnProgress = fn
	}
}

// WithLogf sets the message sink.
func WithLogf(fn Logf) Option {
	return func(c *Config) {
		c.Logf = fn
	}
}
