// Package config loads and validates the gateway's channel/operation/topic
// tree from a TOML file, under the prefix app.channel.<id>...
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
)

// Topics describes the topic list an operation produces to for one leg of the
// pipeline (request→EPortal, response→orchestrator, or DLQ).
type Topics struct {
	Dynamic      bool              `toml:"dynamic"`
	TopicDefault string            `toml:"topic_default"`
	Static       map[string]string `toml:"static"` // datacenter code (e.g. "JRD") -> topic name
}

func (t Topics) clone() Topics {
	static := make(map[string]string, len(t.Static))
	for k, v := range t.Static {
		static[k] = v
	}
	return Topics{Dynamic: t.Dynamic, TopicDefault: t.TopicDefault, Static: static}
}

func (t Topics) valid() error {
	if t.Dynamic {
		return nil
	}
	if len(t.Static) == 0 {
		return fmt.Errorf("topics: at least one static topic required when not dynamic")
	}
	return nil
}

// Resolve returns the destination topic name for the given datacenter code
// (the value the resolver stores on the envelope, e.g. "JRD").
func (t Topics) Resolve(datacenter string) (string, bool) {
	if t.Dynamic {
		if t.TopicDefault == "" {
			return "", false
		}
		return substituteDatacenter(t.TopicDefault, datacenter), true
	}
	topic, ok := t.Static[datacenter]
	return topic, ok
}

func substituteDatacenter(template, datacenter string) string {
	out := make([]byte, 0, len(template)+len(datacenter))
	const token = "{datacenter}"
	for i := 0; i < len(template); {
		if i+len(token) <= len(template) && template[i:i+len(token)] == token {
			out = append(out, datacenter...)
			i += len(token)
			continue
		}
		out = append(out, template[i])
		i++
	}
	return string(out)
}

// DLQ describes the dead-letter route for a channel. Topics embeds the same
// static/dynamic-by-datacenter resolution as an operation's request/response
// topics, since spec §6 names one DLQ topic per datacenter (jrd/qro).
type DLQ struct {
	Enabled bool   `toml:"enabled"`
	Topics  Topics `toml:"topics"`
}

func (d DLQ) clone() DLQ {
	d.Topics = d.Topics.clone()
	return d
}

// Operation is the unit of routing: a (schema, transform, topics, group) bundle.
type Operation struct {
	Enabled         bool     `toml:"enabled"`
	Name            string   `toml:"name"`
	GroupID         string   `toml:"group_id"`
	BinarySchema    string   `toml:"binary_schema"`
	TransformExpr   string   `toml:"transform_expr"`
	JSONSchema      string   `toml:"json_schema"`
	OutputSchema    string   `toml:"output_schema"`
	RequiredHeaders []string `toml:"required_headers"`
	RequestTopics   Topics   `toml:"request_topics"`
	ResponseTopics  Topics   `toml:"response_topics"`
}

func (o Operation) clone() Operation {
	headers := make([]string, len(o.RequiredHeaders))
	copy(headers, o.RequiredHeaders)
	o.RequiredHeaders = headers
	o.RequestTopics = o.RequestTopics.clone()
	o.ResponseTopics = o.ResponseTopics.clone()
	return o
}

func (o Operation) validate() error {
	if o.BinarySchema == "" || o.TransformExpr == "" || o.JSONSchema == "" {
		return fmt.Errorf("operation %q: schema references must be non-empty", o.Name)
	}
	if o.GroupID == "" {
		return fmt.Errorf("operation %q: group_id must be non-empty", o.Name)
	}
	if err := o.RequestTopics.valid(); err != nil {
		return fmt.Errorf("operation %q request_topics: %w", o.Name, err)
	}
	if err := o.ResponseTopics.valid(); err != nil {
		return fmt.Errorf("operation %q response_topics: %w", o.Name, err)
	}
	return nil
}

// Channel groups operations sharing a DLQ and a datacenter map.
type Channel struct {
	Enabled    bool                 `toml:"enabled"`
	TimeoutMS  int                  `toml:"timeout_ms"`
	Operation  map[string]Operation `toml:"operation"`
	DLQ        DLQ                  `toml:"dlq"`
	Datacenter map[string]string    `toml:"datacenter"`

	// Dispatcher wiring: one consumer goroutine per request input topic
	// (spec §4.J), and a single multiplexed consumer across the response
	// input topics.
	RequestInputTopics  []string `toml:"request_input_topics"`
	ResponseInputTopics []string `toml:"response_input_topics"`
	RequestGroupID      string   `toml:"request_group_id"`
	ResponseGroupID     string   `toml:"response_group_id"`
	Brokers             string   `toml:"brokers"`
}

func (c Channel) clone() Channel {
	ops := make(map[string]Operation, len(c.Operation))
	for k, v := range c.Operation {
		ops[k] = v.clone()
	}
	dc := make(map[string]string, len(c.Datacenter))
	for k, v := range c.Datacenter {
		dc[k] = v
	}
	c.Operation = ops
	c.Datacenter = dc
	c.DLQ = c.DLQ.clone()
	c.RequestInputTopics = append([]string(nil), c.RequestInputTopics...)
	c.ResponseInputTopics = append([]string(nil), c.ResponseInputTopics...)
	return c
}

// Tree is the immutable, validated configuration root, keyed app.channel.<id>.
type Tree struct {
	Channel map[string]Channel `toml:"channel"`
}

func (t Tree) clone() Tree {
	channels := make(map[string]Channel, len(t.Channel))
	for k, v := range t.Channel {
		channels[k] = v.clone()
	}
	return Tree{Channel: channels}
}

// root is the top-level [app] table.
type root struct {
	App Tree `toml:"app"`
}

var (
	instance *Tree
	once     sync.Once
)

// GetInstance returns the process-wide config singleton, loading it from
// EPORTAL_GATEWAY_CONFIG (default /etc/eportal-gateway/config.toml) on first
// use. Invalid configuration is a fatal error: it calls os.Exit(1) rather
// than returning, since startup is the only place configuration errors may
// surface.
func GetInstance() *Tree {
	once.Do(func() {
		path := os.Getenv("EPORTAL_GATEWAY_CONFIG")
		if path == "" {
			path = "/etc/eportal-gateway/config.toml"
		}
		tree, err := Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: fatal: %v\n", err)
			os.Exit(1)
		}
		instance = tree
	})
	return instance
}

// Load reads and validates a configuration tree from path. Unknown fields in
// the TOML source are ignored for forward compatibility.
func Load(path string) (*Tree, error) {
	var r root
	if _, err := toml.DecodeFile(path, &r); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	tree := r.App.clone()
	if err := tree.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &tree, nil
}

func (t Tree) validate() error {
	hasEnabledChannel := false
	for id, ch := range t.Channel {
		if !ch.Enabled {
			continue
		}
		hasEnabledChannel = true
		hasEnabledOp := false
		for _, op := range ch.Operation {
			if !op.Enabled {
				continue
			}
			hasEnabledOp = true
			if err := op.validate(); err != nil {
				return fmt.Errorf("channel %q: %w", id, err)
			}
		}
		if !hasEnabledOp {
			return fmt.Errorf("channel %q: enabled but has no enabled operation", id)
		}
	}
	if !hasEnabledChannel {
		return fmt.Errorf("no enabled channel in configuration")
	}
	return nil
}

// IsValid reports whether the tree satisfies §3's invariants.
func (t *Tree) IsValid() bool {
	return t.validate() == nil
}

// Operation looks up an operation by name across all enabled channels.
func (t *Tree) Operation(name string) (Operation, bool) {
	for _, ch := range t.Channel {
		if !ch.Enabled {
			continue
		}
		if op, ok := ch.Operation[name]; ok && op.Enabled {
			return op.clone(), true
		}
	}
	return Operation{}, false
}

// AllOperations returns every enabled operation across all enabled channels.
func (t *Tree) AllOperations() []Operation {
	var ops []Operation
	for _, ch := range t.Channel {
		if !ch.Enabled {
			continue
		}
		for _, op := range ch.Operation {
			if op.Enabled {
				ops = append(ops, op.clone())
			}
		}
	}
	return ops
}

// EnabledChannel returns a defensive copy of the single enabled channel.
func (t *Tree) EnabledChannel() (Channel, bool) {
	id, ok := t.EnabledChannelID()
	if !ok {
		return Channel{}, false
	}
	return t.Channel[id].clone(), true
}

// EnabledChannelID returns the id of the single enabled channel, as resolved
// by the Operation Resolver (§4.D: "find the single enabled channel").
func (t *Tree) EnabledChannelID() (string, bool) {
	for id, ch := range t.Channel {
		if ch.Enabled {
			return id, true
		}
	}
	return "", false
}

// Datacenter resolves a datacenter code (e.g. "JRD") from a channel and a
// substring key matched against source_topic.
func (t *Tree) Datacenter(channelID, key string) (string, bool) {
	ch, ok := t.Channel[channelID]
	if !ok {
		return "", false
	}
	dc, ok := ch.Datacenter[key]
	return dc, ok
}

// DatacenterKeys returns the datacenter map for a channel, used by the
// Operation Resolver to substring-match source_topic.
func (t *Tree) DatacenterKeys(channelID string) map[string]string {
	ch, ok := t.Channel[channelID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(ch.Datacenter))
	for k, v := range ch.Datacenter {
		out[k] = v
	}
	return out
}

// DLQTopic returns the DLQ topic name for a channel and datacenter.
func (t *Tree) DLQTopic(channelID, datacenter string) (string, bool) {
	ch, ok := t.Channel[channelID]
	if !ok || !ch.DLQ.Enabled {
		return "", false
	}
	return ch.DLQ.Topics.Resolve(datacenter)
}
