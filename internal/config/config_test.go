package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const validConfig = `
[app.channel.BNE]
enabled = true
brokers = "localhost:9092"
request_group_id = "gw-request"

[app.channel.BNE.datacenter]
jrd = "JRD"
qro = "QRO"

[app.channel.BNE.dlq]
enabled = true

[app.channel.BNE.dlq.topics]
dynamic = true
topic_default = "dlq.{datacenter}"

[app.channel.BNE.operation.payerQuery]
enabled = true
name = "RequestPayerCustomerOwnAccountRetrieve"
group_id = "gw-request"
binary_schema = "payerQuery.avsc"
transform_expr = "payerQuery.jsonata"
json_schema = "payerQuery.json"

[app.channel.BNE.operation.payerQuery.request_topics]
dynamic = true
topic_default = "out.{datacenter}"

[app.channel.BNE.operation.payerQuery.response_topics]
dynamic = true
topic_default = "in.{datacenter}"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)
	tree, err := Load(path)
	if err != nil {
		t.Fatalf("expected valid config to load, got %v", err)
	}
	if !tree.IsValid() {
		t.Fatal("expected tree to report valid")
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	path := writeConfig(t, validConfig)
	first, err := Load(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	op1, ok1 := first.Operation("RequestPayerCustomerOwnAccountRetrieve")
	op2, ok2 := second.Operation("RequestPayerCustomerOwnAccountRetrieve")
	if !ok1 || !ok2 {
		t.Fatal("expected operation present in both loads")
	}
	if !reflect.DeepEqual(op1, op2) {
		t.Fatalf("expected identical operation trees, got %+v vs %+v", op1, op2)
	}
}

func TestLoadRejectsOperationMissingGroupID(t *testing.T) {
	bad := `
[app.channel.BNE]
enabled = true

[app.channel.BNE.operation.payerQuery]
enabled = true
name = "x"
binary_schema = "a.avsc"
transform_expr = "a.jsonata"
json_schema = "a.json"

[app.channel.BNE.operation.payerQuery.request_topics]
dynamic = true
topic_default = "x.{datacenter}"

[app.channel.BNE.operation.payerQuery.response_topics]
dynamic = true
topic_default = "x.{datacenter}"
`
	path := writeConfig(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatal("expected load to fail for operation missing group_id")
	}
}

func TestLoadRejectsNoEnabledChannel(t *testing.T) {
	bad := `
[app.channel.BNE]
enabled = false
`
	path := writeConfig(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatal("expected load to fail when no channel is enabled")
	}
}

func TestDefensiveCopiesDoNotLeak(t *testing.T) {
	path := writeConfig(t, validConfig)
	tree, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	op, _ := tree.Operation("RequestPayerCustomerOwnAccountRetrieve")
	op.RequiredHeaders = append(op.RequiredHeaders, "mutated")

	again, _ := tree.Operation("RequestPayerCustomerOwnAccountRetrieve")
	if len(again.RequiredHeaders) != 0 {
		t.Fatalf("expected caller mutation not to leak into config tree, got %+v", again.RequiredHeaders)
	}
}

func TestTopicsResolveDynamic(t *testing.T) {
	topics := Topics{Dynamic: true, TopicDefault: "out.{datacenter}"}
	got, ok := topics.Resolve("JRD")
	if !ok || got != "out.JRD" {
		t.Fatalf("expected out.JRD, got %q (ok=%v)", got, ok)
	}
}

func TestTopicsResolveStatic(t *testing.T) {
	topics := Topics{Static: map[string]string{"JRD": "out.jrd"}}
	got, ok := topics.Resolve("JRD")
	if !ok || got != "out.jrd" {
		t.Fatalf("expected out.jrd, got %q (ok=%v)", got, ok)
	}
	if _, ok := topics.Resolve("QRO"); ok {
		t.Fatal("expected no match for unconfigured datacenter")
	}
}
