package logrus

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/pagecache"
)

func TestFieldsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.DebugLevel)

	New(l).Warn("store get failed", pagecache.Fields{"key": "page:c:1|page0", "err": errors.New("timeout")})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if line["component"] != "pagecache" || line["key"] != "page:c:1|page0" || line["error"] != "timeout" {
		t.Fatalf("unexpected line: %v", line)
	}
	if line["level"] != "warning" || line["msg"] != "store get failed" {
		t.Fatalf("unexpected level/msg: %v", line)
	}
}
