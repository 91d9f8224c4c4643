package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

const logService = "autopark-api"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Everything written through it
// is expected to be one JSON object per line.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one structured log line. The service name is always
// stamped and a timestamp is added when the caller did not set one, so ad-hoc
// warn entries from the services line up with the request log.
func LogRequest(entry map[string]any) {
	line := make(map[string]any, len(entry)+2)
	for k, v := range entry {
		line[k] = v
	}
	line["service"] = logService
	if _, ok := line["ts"]; !ok {
		line["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(line)
	if err != nil {
		Logger().Println(`{"service":"` + logService + `","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
