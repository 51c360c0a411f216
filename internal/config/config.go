package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jermoo/realms-core/internal/aggregate"
	"github.com/jermoo/realms-core/internal/projector"
	"github.com/jermoo/realms-core/internal/retry"
)

// RuntimeConfig holds the enumerated configuration keys for the aggregate,
// key-value store (journal/snapshot I/O), and indexing subsystems, loaded
// once at startup from the environment. Load returns a value the caller
// wires explicitly into each component's constructor — this codebase
// favors capability injection over ambient global state.
type RuntimeConfig struct {
	Aggregate      aggregate.Config
	Projector      projector.Config
	JournalRetry   retry.Policy
	IndexRetry     retry.Policy
	WellKnownRetry retry.Policy
}

// Load reads RuntimeConfig from the environment, applying the same
// defaults DefaultConfig would if a key is unset.
func Load() (RuntimeConfig, error) {
	agg := aggregate.DefaultConfig()
	var err error

	if agg.CommandTimeout, err = durationEnv("AGGREGATE_COMMAND_EVALUATION_TIMEOUT", agg.CommandTimeout); err != nil {
		return RuntimeConfig{}, err
	}
	if agg.IdleTimeout, err = durationEnv("AGGREGATE_PASSIVATION_LAPSED_SINCE_LAST_INTERACTION", agg.IdleTimeout); err != nil {
		return RuntimeConfig{}, err
	}
	if agg.MaxLifetime, err = durationEnv("AGGREGATE_PASSIVATION_LAPSED_SINCE_RECOVERY_COMPLETED", agg.MaxLifetime); err != nil {
		return RuntimeConfig{}, err
	}
	if agg.SnapshotEvery, err = intEnv("AGGREGATE_SNAPSHOT_EVERY", agg.SnapshotEvery); err != nil {
		return RuntimeConfig{}, err
	}
	if agg.Inbox, err = intEnv("AGGREGATE_SHARDS_INBOX", agg.Inbox); err != nil {
		return RuntimeConfig{}, err
	}

	proj := projector.DefaultConfig()
	if proj.BatchSize, err = intEnv("INDEXING_BATCH", proj.BatchSize); err != nil {
		return RuntimeConfig{}, err
	}
	if proj.BatchTimeout, err = durationEnv("INDEXING_BATCH_TIMEOUT", proj.BatchTimeout); err != nil {
		return RuntimeConfig{}, err
	}
	if proj.PersistEvery, err = intEnv("INDEXING_PROGRESS_PERSIST_AFTER_PROCESSED", proj.PersistEvery); err != nil {
		return RuntimeConfig{}, err
	}
	if proj.PersistWallclock, err = durationEnv("INDEXING_PROGRESS_MAX_TIME_WINDOW", proj.PersistWallclock); err != nil {
		return RuntimeConfig{}, err
	}

	journalRetry, err := retryEnv("KEYVALUESTORE_RETRY", retry.DefaultExponential(200*time.Millisecond, 5*time.Second, 5))
	if err != nil {
		return RuntimeConfig{}, err
	}
	indexRetry, err := retryEnv("INDEXING_RETRY", retry.DefaultExponential(100*time.Millisecond, 2*time.Second, 3))
	if err != nil {
		return RuntimeConfig{}, err
	}
	wellKnownRetry, err := retryEnv("WELLKNOWN_RETRY", retry.DefaultExponential(500*time.Millisecond, 10*time.Second, 3))
	if err != nil {
		return RuntimeConfig{}, err
	}

	return RuntimeConfig{
		Aggregate: agg, Projector: proj,
		JournalRetry: journalRetry, IndexRetry: indexRetry, WellKnownRetry: wellKnownRetry,
	}, nil
}

// retryEnv reads "{name}_KIND" (never|once|constant|exponential) and
// returns fallback's policy unchanged if unset. Besides the strategy kind,
// only the constant strategy's delay is read from env ("{name}_DELAY",
// default 1s); the exponential parameters stay at their caller-supplied
// defaults.
func retryEnv(name string, fallback retry.Policy) (retry.Policy, error) {
	kind := os.Getenv(name + "_KIND")
	switch kind {
	case "", "exponential":
		return fallback, nil
	case "never":
		return retry.Never(), nil
	case "once":
		return retry.Once(), nil
	case "constant":
		delay, err := durationEnv(name+"_DELAY", time.Second)
		if err != nil {
			return retry.Policy{}, err
		}
		return retry.Constant(delay), nil
	default:
		return retry.Policy{}, fmt.Errorf("config: %s_KIND: unknown retry kind %q", name, kind)
	}
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return d, nil
}

func intEnv(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return n, nil
}
