package filesystem

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/stubhttp/internal/domain/scenario"
)

// yamlDefinition is the YAML deserialization target for expectation files.
type yamlDefinition struct {
	ID       string       `yaml:"id"`
	Name     string       `yaml:"name"`
	Priority int          `yaml:"priority"`
	When     yamlWhen     `yaml:"when"`
	Response yamlResponse `yaml:"response"`
	Times    yamlTimes    `yaml:"times,omitempty"`
	Policy   *yamlPolicy  `yaml:"policy,omitempty"`
}

type yamlWhen struct {
	Method      string            `yaml:"method"`
	Path        string            `yaml:"path"`
	PathPattern string            `yaml:"path_pattern"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Query       map[string]string `yaml:"query,omitempty"`
	Body        *yamlBody         `yaml:"body,omitempty"`
}

type yamlBody struct {
	ContentType string          `yaml:"content_type,omitempty"`
	Conditions  []yamlCondition `yaml:"conditions,omitempty"`
	Equals      string          `yaml:"equals,omitempty"`
	Contains    string          `yaml:"contains,omitempty"`
	Regex       string          `yaml:"regex,omitempty"`
	Expr        string          `yaml:"expr,omitempty"`
	All         []yamlBody      `yaml:"all,omitempty"`
	Any         []yamlBody      `yaml:"any,omitempty"`
	Not         *yamlBody       `yaml:"not,omitempty"`
}

type yamlCondition struct {
	Extractor string `yaml:"extractor"`
	Matcher   string `yaml:"matcher"`
}

type yamlResponse struct {
	Status      int         `yaml:"status"`
	Headers     yamlHeaders `yaml:"headers,omitempty"`
	Body        string      `yaml:"body,omitempty"`
	BodyFile    string      `yaml:"body_file,omitempty"`
	ContentType string      `yaml:"content_type,omitempty"`
	Engine      string      `yaml:"engine,omitempty"`
	DelayMs     int         `yaml:"delay_ms,omitempty"`
}

// yamlHeaders keeps mapping order, which a Go map would lose.
type yamlHeaders []scenario.Header

func (h *yamlHeaders) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(yamlHeaders, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: header %q must be a scalar", v.Line, k.Value)
			}
			out = append(out, scenario.Header{Name: k.Value, Value: v.Value})
		}
		*h = out
		return nil
	case yaml.SequenceNode:
		var fields []struct {
			Name  string `yaml:"name"`
			Value string `yaml:"value"`
		}
		if err := node.Decode(&fields); err != nil {
			return err
		}
		out := make(yamlHeaders, len(fields))
		for i, f := range fields {
			out[i] = scenario.Header{Name: f.Name, Value: f.Value}
		}
		*h = out
		return nil
	default:
		return fmt.Errorf("line %d: headers must be a mapping or a list", node.Line)
	}
}

// yamlTimes accepts a bare count (exactly), "once", "unbounded", or a
// mapping with exactly / at_least.
type yamlTimes struct {
	Exactly *int `yaml:"exactly,omitempty"`
	AtLeast *int `yaml:"at_least,omitempty"`
}

func (t *yamlTimes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		switch v := strings.ToLower(strings.TrimSpace(node.Value)); v {
		case "", "unbounded", "any":
			*t = yamlTimes{}
		case "once":
			one := 1
			*t = yamlTimes{Exactly: &one}
		default:
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("line %d: invalid times %q", node.Line, node.Value)
			}
			*t = yamlTimes{Exactly: &n}
		}
		return nil
	}

	type plain yamlTimes
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = yamlTimes(p)
	return nil
}

type yamlPolicy struct {
	RateLimit *yamlRateLimit `yaml:"rate_limit,omitempty"`
	Latency   *yamlLatency   `yaml:"latency,omitempty"`
}

type yamlRateLimit struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
	Key   string  `yaml:"key,omitempty"`
}

type yamlLatency struct {
	FixedMs  int `yaml:"fixed_ms,omitempty"`
	JitterMs int `yaml:"jitter_ms,omitempty"`
}

func (yd *yamlDefinition) toDefinition() *scenario.Definition {
	d := &scenario.Definition{
		ID:       yd.ID,
		Name:     yd.Name,
		Priority: yd.Priority,
		When: scenario.WhenClause{
			Method:      yd.When.Method,
			Path:        yd.When.Path,
			PathPattern: yd.When.PathPattern,
			Query:       yd.When.Query,
			Body:        yd.When.Body.toBodyClause(),
		},
		Response: scenario.Response{
			Status:      yd.Response.Status,
			Headers:     scenario.HeaderList(yd.Response.Headers),
			Body:        yd.Response.Body,
			BodyFile:    yd.Response.BodyFile,
			ContentType: yd.Response.ContentType,
			Engine:      yd.Response.Engine,
			DelayMs:     yd.Response.DelayMs,
		},
		Times: scenario.TimesClause{
			Exactly: yd.Times.Exactly,
			AtLeast: yd.Times.AtLeast,
		},
		Policy: yd.Policy.toPolicy(),
	}

	if yd.When.Headers != nil {
		d.When.Headers = make(map[string]scenario.StringMatcher, len(yd.When.Headers))
		for k, v := range yd.When.Headers {
			d.When.Headers[k] = scenario.ParseStringMatcher(v)
		}
	}
	return d
}

func (yb *yamlBody) toBodyClause() *scenario.BodyClause {
	if yb == nil {
		return nil
	}

	bc := &scenario.BodyClause{
		ContentType: yb.ContentType,
		Equals:      yb.Equals,
		Contains:    yb.Contains,
		Regex:       yb.Regex,
		Expr:        yb.Expr,
		Not:         yb.Not.toBodyClause(),
	}
	for _, c := range yb.Conditions {
		bc.Conditions = append(bc.Conditions, scenario.BodyCondition{
			Extractor: c.Extractor,
			Matcher:   scenario.ParseStringMatcher(c.Matcher),
		})
	}
	for i := range yb.All {
		bc.All = append(bc.All, *yb.All[i].toBodyClause())
	}
	for i := range yb.Any {
		bc.Any = append(bc.Any, *yb.Any[i].toBodyClause())
	}
	return bc
}

func (yp *yamlPolicy) toPolicy() *scenario.Policy {
	if yp == nil {
		return nil
	}

	p := &scenario.Policy{}
	if yp.RateLimit != nil {
		p.RateLimit = &scenario.RateLimit{
			Rate:  yp.RateLimit.Rate,
			Burst: yp.RateLimit.Burst,
			Key:   yp.RateLimit.Key,
		}
	}
	if yp.Latency != nil {
		p.Latency = &scenario.Latency{
			FixedMs:  yp.Latency.FixedMs,
			JitterMs: yp.Latency.JitterMs,
		}
	}
	return p
}
