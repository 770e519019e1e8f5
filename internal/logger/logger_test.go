package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestBuild_EmitsComponentAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info", Component: "test"}, &buf)
	zl.Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output is not json: %v (%s)", err, buf.String())
	}
	if line["component"] != "test" || line["msg"] != "hello" {
		t.Fatalf("line = %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", line)
	}
}

func TestFromContext_AttachesRequestFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithQueryType(ctx, "get_forecast_summary")
	FromContext(ctx, &zl).Info().Msg("tagged")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-1"`) {
		t.Fatalf("missing request_id: %s", out)
	}
	if !strings.Contains(out, `"query_type":"get_forecast_summary"`) {
		t.Fatalf("missing query_type: %s", out)
	}
}

func TestNewSlog_BridgesAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug"}, &buf)
	sl := NewSlog(&zl)

	sl.Info("bridged", "count", int64(3), "ok", true)

	out := buf.String()
	if !strings.Contains(out, `"count":3`) || !strings.Contains(out, `"ok":true`) {
		t.Fatalf("attrs not bridged: %s", out)
	}
}

func TestNewSlog_HonorsConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	sl := NewSlog(&zl)

	if sl.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info must be disabled at warn level")
	}
	sl.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info leaked past warn level: %s", buf.String())
	}
	sl.Warn("loud")
	if !strings.Contains(buf.String(), `"loud"`) {
		t.Fatalf("warn suppressed: %s", buf.String())
	}
}

func TestNewSlog_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	sl := NewSlog(&zl)

	ctx := WithQueryType(WithRequestID(context.Background(), "req-9"), "get_forecast_data")
	sl.InfoContext(ctx, "tagged")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-9"`) || !strings.Contains(out, `"query_type":"get_forecast_data"`) {
		t.Fatalf("context fields not bridged: %s", out)
	}
}

func TestNewSlog_GroupsFlattenToDottedKeys(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	sl := NewSlog(&zl).WithGroup("db")

	sl.Info("grouped", "table", "summary_cache")

	if !strings.Contains(buf.String(), `"db.table":"summary_cache"`) {
		t.Fatalf("group prefix missing: %s", buf.String())
	}
}

func TestNewID_UniqueEnough(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Fatalf("ids collide: %s", a)
	}
	if len(a) != 16 {
		t.Fatalf("id length = %d", len(a))
	}
}
