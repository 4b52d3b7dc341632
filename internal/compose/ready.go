package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// probeTimeout bounds a single readiness probe attempt.
const probeTimeout = 2 * time.Second

// pollInterval is how often published ports are re-discovered.
const pollInterval = time.Second

// Ready is the outcome of a readiness wait. Port is the last candidate
// probed; it is reported even on failure so callers can point at what
// never answered.
type Ready struct {
	Ready bool `json:"ready"`
	Port  int  `json:"port,omitempty"`
}

// WaitReady polls the environment's published host ports once per second
// until one accepts an HTTP exchange or timeout elapses. Any HTTP
// response, 4xx/5xx included, counts as ready: the probe only claims
// the service accepts connections, not that it is healthy.
func (d *Driver) WaitReady(ctx context.Context, id string, timeout time.Duration) (Ready, error) {
	dir, err := d.Resolve(id)
	if err != nil {
		return Ready{}, err
	}

	probe := d.Probe
	if probe == nil {
		probe = httpProbe
	}

	deadline := time.Now().Add(timeout)
	lastPort := 0
	for {
		ports := d.publishedPorts(ctx, dir)
		for _, port := range ports {
			lastPort = port
			if probe(ctx, port) {
				return Ready{Ready: true, Port: port}, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Ready{Ready: false, Port: lastPort}, nil
		}
		wait := pollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return Ready{Ready: false, Port: lastPort}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

var portBinding = regexp.MustCompile(`:(\d+)->\d+/(?:tcp|udp)`)

// publishedPorts discovers currently published host ports through
// `ps --format json`. Output format drifted across compose versions,
// one JSON object per line on current ones and a single array on older,
// so both are accepted. Failures yield no ports; the wait loop retries.
func (d *Driver) publishedPorts(ctx context.Context, dir string) []int {
	stdout, _, err := d.run(ctx, dir, "ps", "--format", "json")
	if err != nil {
		return nil
	}
	return parsePublishedPorts(stdout)
}

type psEntry struct {
	Ports string `json:"Ports"`
}

func parsePublishedPorts(output string) []int {
	var entries []psEntry

	trimmed := []byte(output)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		_ = json.Unmarshal(trimmed, &entries)
	} else {
		dec := json.NewDecoder(strings.NewReader(output))
		for {
			var e psEntry
			if err := dec.Decode(&e); err != nil {
				break
			}
			entries = append(entries, e)
		}
	}

	var ports []int
	seen := map[int]bool{}
	for _, e := range entries {
		for _, m := range portBinding.FindAllStringSubmatch(e.Ports, -1) {
			if p, err := strconv.Atoi(m[1]); err == nil && !seen[p] {
				seen[p] = true
				ports = append(ports, p)
			}
		}
	}
	return ports
}

// httpProbe reports whether anything HTTP-shaped answers on the port.
// An error response still proves the socket accepts connections.
func httpProbe(ctx context.Context, port int) bool {
	client := &http.Client{Timeout: probeTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://127.0.0.1:%d/", port), nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
