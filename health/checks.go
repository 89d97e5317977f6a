package health

import (
	"context"
	"errors"
	"sort"

	goerrors "github.com/goliatone/go-errors"
	"github.com/littlegabriel/gabriel"
)

// Check names
const (
	CheckDatabase = "database"
	CheckLLM      = "llm"
	CheckBible    = "bible"
	CheckEnv      = "env"
	CheckRedis    = "redis"
)

type skipped struct {
	reason string
}

func (s skipped) Error() string { return s.reason }

// Skip marks a check as not configured
func Skip(reason string) error {
	return skipped{reason: reason}
}

func IsSkipped(err error) bool {
	var s skipped
	return errors.As(err, &s)
}

// Pinger is satisfied by the Bible and LLM clients and the redis store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Configurable reports whether the dependency has the settings it needs
type Configurable interface {
	Configured() bool
}

// DBPinger is satisfied by *bun.DB and *sql.DB
type DBPinger interface {
	PingContext(ctx context.Context) error
}

func Database(db DBPinger, dialect string) Check {
	return NewCheck(CheckDatabase, func(ctx context.Context) (map[string]any, error) {
		details := map[string]any{"dialect": dialect}
		if db == nil {
			return details, goerrors.New("database handle not initialized", goerrors.CategoryInternal)
		}
		if err := db.PingContext(ctx); err != nil {
			return details, goerrors.Wrap(err, goerrors.CategoryOperation, "database ping failed")
		}
		return details, nil
	})
}

// Upstream pings a hosted dependency, unconfigured dependencies are skipped
func Upstream(name string, p Pinger) Check {
	return NewCheck(name, func(ctx context.Context) (map[string]any, error) {
		if p == nil {
			return nil, Skip(name + " client not configured")
		}
		if c, ok := p.(Configurable); ok && !c.Configured() {
			return nil, Skip(name + " api key not set")
		}
		if err := p.Ping(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// Redis pings the revocation store when one is configured
func Redis(p Pinger) Check {
	return NewCheck(CheckRedis, func(ctx context.Context) (map[string]any, error) {
		if p == nil {
			return nil, Skip("REDIS_URL not set, using in-memory revocation")
		}
		if err := p.Ping(ctx); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "redis ping failed")
		}
		return nil, nil
	})
}

// Env reports which variables are set and their length, never their value.
// presence maps a variable name to its length or -1 when unset.
func Env(presence map[string]int, required ...string) Check {
	return NewCheck(CheckEnv, func(context.Context) (map[string]any, error) {
		details := make(map[string]any, len(presence))
		for name, length := range presence {
			if length < 0 {
				details[name] = "missing"
				continue
			}
			details[name] = map[string]any{"set": true, "length": length}
		}

		var missing []string
		for _, name := range required {
			if presence[name] <= 0 {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return details, goerrors.New("required environment variables missing", goerrors.CategoryInternal).WithTextCode(gabriel.TextCodeConfigInvalid).
				WithMetadata(map[string]any{"missing": missing})
		}
		return details, nil
	})
}
