package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("UNIFIEDBASE_TEST_MODE") == "" {
			_ = os.Setenv("UNIFIEDBASE_TEST_MODE", "1")
		}
	})
}
