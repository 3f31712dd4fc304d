package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/argus-mon/argus/internal/sshx"
	"github.com/argus-mon/argus/internal/storage"
)

const (
	defaultDockerSocket = "/var/run/docker.sock"
	dockerAPIVersion    = "v1.24"
)

// DockerChecker watches a set of containers on one daemon, reached through
// the local unix socket, a remote TCP endpoint, or the docker CLI over SSH.
type DockerChecker struct{}

// containerInfo is the per-container snapshot the transports produce.
type containerInfo struct {
	ID           string
	Name         string
	Image        string
	State        string // running, exited, ...
	Health       string // healthy, unhealthy, starting, none
	RestartCount int
	CPUPercent   float64
	MemPercent   float64
	HasStats     bool
}

func (c *DockerChecker) Type() string { return storage.TypeDocker }

func (c *DockerChecker) Validate(monitor *storage.Monitor) error {
	cfg := monitor.Docker
	if cfg == nil {
		return nil
	}
	if cfg.Host != "" {
		if _, _, err := net.SplitHostPort(cfg.Host); err != nil {
			return fmt.Errorf("docker host must be host:port: %w", err)
		}
	}
	if cfg.SSH != nil {
		if cfg.Host != "" {
			return fmt.Errorf("docker ssh and tcp transports are mutually exclusive")
		}
		if cfg.SSH.Host == "" || cfg.SSH.Username == "" {
			return fmt.Errorf("docker over ssh requires a host and username")
		}
		if cfg.SSH.Password == "" && cfg.SSH.PrivateKey == "" {
			return fmt.Errorf("docker over ssh requires a password or a private key")
		}
	}
	if cfg.RestartLimit < 0 {
		return fmt.Errorf("restart_limit must not be negative")
	}
	return nil
}

func (c *DockerChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Result, error) {
	var cfg storage.DockerConfig
	if monitor.Docker != nil {
		cfg = *monitor.Docker
	}

	start := time.Now()
	var (
		containers []containerInfo
		err        error
	)
	if cfg.SSH != nil {
		containers, err = sshContainers(ctx, monitor, cfg.SSH)
	} else {
		containers, err = apiContainers(ctx, monitor, &cfg)
	}
	if err != nil {
		return ErrorResult("docker: %v", err), nil
	}
	elapsed := time.Since(start).Milliseconds()

	matched := filterContainers(containers, &cfg, monitor.Target)
	result := &Result{
		ResponseTime: elapsed,
		Timestamp:    time.Now().UTC(),
		Metadata:     map[string]any{"container_count": len(matched)},
	}
	if len(matched) == 0 {
		result.Status = StatusAlarm
		result.Message = "no containers matched the filter"
		return result, nil
	}

	var (
		details []map[string]any
		reasons []string
		warns   []string
		maxCPU  float64
	)
	for _, ct := range matched {
		if ct.CPUPercent > maxCPU {
			maxCPU = ct.CPUPercent
		}
		details = append(details, map[string]any{
			"name":           ct.Name,
			"image":          ct.Image,
			"state":          ct.State,
			"health":         ct.Health,
			"restart_count":  ct.RestartCount,
			"cpu_percent":    ct.CPUPercent,
			"memory_percent": ct.MemPercent,
		})

		switch {
		case ct.State != "running":
			reasons = append(reasons, fmt.Sprintf("%s is %s", ct.Name, ct.State))
		case ct.Health == "unhealthy":
			reasons = append(reasons, fmt.Sprintf("%s is unhealthy", ct.Name))
		case cfg.CPUCritical > 0 && ct.HasStats && ct.CPUPercent >= cfg.CPUCritical:
			reasons = append(reasons, fmt.Sprintf("%s cpu %.1f%%", ct.Name, ct.CPUPercent))
		case cfg.MemoryCritical > 0 && ct.HasStats && ct.MemPercent >= cfg.MemoryCritical:
			reasons = append(reasons, fmt.Sprintf("%s memory %.1f%%", ct.Name, ct.MemPercent))
		case cfg.CPUWarning > 0 && ct.HasStats && ct.CPUPercent >= cfg.CPUWarning:
			warns = append(warns, fmt.Sprintf("%s cpu %.1f%%", ct.Name, ct.CPUPercent))
		case cfg.MemoryWarning > 0 && ct.HasStats && ct.MemPercent >= cfg.MemoryWarning:
			warns = append(warns, fmt.Sprintf("%s memory %.1f%%", ct.Name, ct.MemPercent))
		case ct.Health == "starting":
			warns = append(warns, fmt.Sprintf("%s health starting", ct.Name))
		case cfg.RestartLimit > 0 && ct.RestartCount > cfg.RestartLimit:
			warns = append(warns, fmt.Sprintf("%s restarted %d times", ct.Name, ct.RestartCount))
		}
	}
	result.Value = Float(maxCPU)
	result.Metadata["containers"] = details

	switch {
	case len(reasons) > 0:
		result.Status = StatusAlarm
		result.Message = strings.Join(reasons, "; ")
	case len(warns) > 0:
		result.Status = StatusWarning
		result.Success = true
		result.Message = strings.Join(warns, "; ")
	default:
		result.Status = StatusOK
		result.Success = true
		result.Message = fmt.Sprintf("%d container(s) healthy", len(matched))
	}
	return result, nil
}

func filterContainers(containers []containerInfo, cfg *storage.DockerConfig, target string) []containerInfo {
	name := cfg.Name
	if name == "" && cfg.Image == "" && target != "" {
		name = target
	}
	var out []containerInfo
	for _, ct := range containers {
		if name != "" && !strings.Contains(ct.Name, name) && !strings.HasPrefix(ct.ID, name) {
			continue
		}
		if cfg.Image != "" && !strings.Contains(ct.Image, cfg.Image) {
			continue
		}
		out = append(out, ct)
	}
	return out
}

// apiContainers talks to the engine API over the unix socket or TCP.
func apiContainers(ctx context.Context, monitor *storage.Monitor, cfg *storage.DockerConfig) ([]containerInfo, error) {
	timeout := time.Duration(monitor.TimeoutSeconds) * time.Second
	base := "http://docker"
	transport := &http.Transport{DisableKeepAlives: true}
	if cfg.Host != "" {
		base = "http://" + cfg.Host
		transport.DialContext = (&net.Dialer{Timeout: timeout}).DialContext
	} else {
		socket := cfg.Socket
		if socket == "" {
			socket = defaultDockerSocket
		}
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return (&net.Dialer{Timeout: timeout}).DialContext(ctx, "unix", socket)
		}
	}
	client := &http.Client{Transport: transport, Timeout: timeout}

	var list []struct {
		ID    string   `json:"Id"`
		Names []string `json:"Names"`
		Image string   `json:"Image"`
		State string   `json:"State"`
	}
	if err := dockerGet(ctx, client, base, "/containers/json?all=true", &list); err != nil {
		return nil, err
	}

	out := make([]containerInfo, 0, len(list))
	for _, item := range list {
		info := containerInfo{
			ID:     item.ID,
			Image:  item.Image,
			State:  item.State,
			Health: "none",
		}
		if len(item.Names) > 0 {
			info.Name = strings.TrimPrefix(item.Names[0], "/")
		}

		var inspect struct {
			RestartCount int `json:"RestartCount"`
			State        struct {
				Status string `json:"Status"`
				Health *struct {
					Status string `json:"Status"`
				} `json:"Health"`
			} `json:"State"`
		}
		if err := dockerGet(ctx, client, base, "/containers/"+url.PathEscape(item.ID)+"/json", &inspect); err == nil {
			info.RestartCount = inspect.RestartCount
			if inspect.State.Status != "" {
				info.State = inspect.State.Status
			}
			if inspect.State.Health != nil {
				info.Health = inspect.State.Health.Status
			}
		}

		// Stats only make sense for running containers; a one-shot read
		// is enough for a gauge.
		if info.State == "running" {
			var stats struct {
				CPUStats struct {
					CPUUsage struct {
						TotalUsage uint64 `json:"total_usage"`
					} `json:"cpu_usage"`
					SystemUsage uint64 `json:"system_cpu_usage"`
					OnlineCPUs  int    `json:"online_cpus"`
				} `json:"cpu_stats"`
				PreCPUStats struct {
					CPUUsage struct {
						TotalUsage uint64 `json:"total_usage"`
					} `json:"cpu_usage"`
					SystemUsage uint64 `json:"system_cpu_usage"`
				} `json:"precpu_stats"`
				MemoryStats struct {
					Usage uint64 `json:"usage"`
					Limit uint64 `json:"limit"`
				} `json:"memory_stats"`
			}
			if err := dockerGet(ctx, client, base, "/containers/"+url.PathEscape(item.ID)+"/stats?stream=false", &stats); err == nil {
				cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
				sysDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
				cpus := stats.CPUStats.OnlineCPUs
				if cpus == 0 {
					cpus = 1
				}
				if sysDelta > 0 && cpuDelta >= 0 {
					info.CPUPercent = cpuDelta / sysDelta * float64(cpus) * 100
				}
				if stats.MemoryStats.Limit > 0 {
					info.MemPercent = float64(stats.MemoryStats.Usage) / float64(stats.MemoryStats.Limit) * 100
				}
				info.HasStats = true
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func dockerGet(ctx context.Context, client *http.Client, base, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+dockerAPIVersion+path, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docker api %s returned %d", path, resp.StatusCode)
	}
	return json.Unmarshal(body, v)
}

// sshContainers drives the docker CLI on a remote host. Three commands:
// enumerate, inspect, stats.
func sshContainers(ctx context.Context, monitor *storage.Monitor, ssh *storage.SSHConfig) ([]containerInfo, error) {
	client, err := sshx.Dial(ctx, sshx.Config{
		Host:       ssh.Host,
		Port:       ssh.Port,
		User:       ssh.Username,
		Password:   ssh.Password,
		PrivateKey: ssh.PrivateKey,
		Passphrase: ssh.Passphrase,
		Timeout:    time.Duration(monitor.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("ssh connect: %w", err)
	}
	defer client.Close()

	stdout, stderr, err := client.Run(ctx, `docker ps -a --format '{{.ID}}|{{.Names}}|{{.Image}}|{{.State}}'`)
	if err != nil {
		return nil, fmt.Errorf("docker ps: %v (%s)", err, tail(stderr, 200))
	}

	var out []containerInfo
	for _, line := range splitLines(stdout) {
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		out = append(out, containerInfo{
			ID:     parts[0],
			Name:   parts[1],
			Image:  parts[2],
			State:  parts[3],
			Health: "none",
		})
	}

	for i := range out {
		cmd := fmt.Sprintf(`docker inspect -f '{{.RestartCount}}|{{.State.Status}}|{{if .State.Health}}{{.State.Health.Status}}{{else}}none{{end}}' %s`, shellQuote(out[i].ID))
		stdout, _, err := client.Run(ctx, cmd)
		if err != nil {
			continue
		}
		parts := strings.SplitN(strings.TrimSpace(stdout), "|", 3)
		if len(parts) != 3 {
			continue
		}
		out[i].RestartCount, _ = strconv.Atoi(parts[0])
		out[i].State = parts[1]
		out[i].Health = parts[2]
	}

	stdout, _, err = client.Run(ctx, `docker stats --no-stream --format '{{.ID}}|{{.CPUPerc}}|{{.MemPerc}}'`)
	if err == nil {
		statsByID := make(map[string][2]float64)
		for _, line := range splitLines(stdout) {
			parts := strings.SplitN(line, "|", 3)
			if len(parts) != 3 {
				continue
			}
			cpu := parsePercent(parts[1])
			mem := parsePercent(parts[2])
			statsByID[parts[0]] = [2]float64{cpu, mem}
		}
		for i := range out {
			for id, vals := range statsByID {
				if strings.HasPrefix(out[i].ID, id) || strings.HasPrefix(id, out[i].ID) {
					out[i].CPUPercent = vals[0]
					out[i].MemPercent = vals[1]
					out[i].HasStats = true
					break
				}
			}
		}
	}
	return out, nil
}

func parsePercent(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	return v
}
