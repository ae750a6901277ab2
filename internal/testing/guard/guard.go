package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("VALUETRACK_TEST_MODE") == "" {
			_ = os.Setenv("VALUETRACK_TEST_MODE", "1")
		}
	})
}
