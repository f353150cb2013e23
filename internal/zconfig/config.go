/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package zconfig loads the JSON configuration files for the zrp client
// and server, via viper, and supplies the example-config dump used by
// the dump_config subcommand.
package zconfig

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"

	"github.com/sabouaram/zrp/duration"
)

// ShareConfig describes one client-side tcp-share: a local service
// exposed on the server's remote_port.
type ShareConfig struct {
	LocalHost  string `mapstructure:"local_host" json:"local_host"`
	LocalPort  uint16 `mapstructure:"local_port" json:"local_port"`
	RemotePort uint16 `mapstructure:"remote_port" json:"remote_port"`
}

// ClientConfig is the root of a client's config.json.
type ClientConfig struct {
	ServerHost string `mapstructure:"server_host" json:"server_host"`
	ServerPort uint16 `mapstructure:"server_port" json:"server_port"`

	TcpShares map[string]ShareConfig `mapstructure:"tcp_shares" json:"tcp_shares"`

	ForwarderThreads int `mapstructure:"forwarder_threads" json:"forwarder_threads"`

	WorkerCountInitial int `mapstructure:"worker_count_initial" json:"worker_count_initial"`
	WorkerCountLow     int `mapstructure:"worker_count_low" json:"worker_count_low"`
	WorkerCountMore    int `mapstructure:"worker_count_more" json:"worker_count_more"`

	AccessLog bool `mapstructure:"access_log" json:"access_log"`

	RlimitNoFile uint64 `mapstructure:"rlimit_nofile" json:"rlimit_nofile"`

	// PingInterval is loaded and dumped with the rest of the config; the
	// client tunnel uses its own fixed ping interval and does not read it.
	PingInterval duration.Duration `mapstructure:"ping_interval" json:"ping_interval"`
}

// ServerConfig is the root of a server's config.json.
type ServerConfig struct {
	BindHost string `mapstructure:"bind_host" json:"bind_host"`
	BindPort uint16 `mapstructure:"server_port" json:"server_port"`

	SharingHost string `mapstructure:"sharing_host" json:"sharing_host"`

	Welcome string `mapstructure:"welcome" json:"welcome"`

	ForwarderThreads int `mapstructure:"forwarder_threads" json:"forwarder_threads"`

	AccessLog bool `mapstructure:"access_log" json:"access_log"`

	RlimitNoFile uint64 `mapstructure:"rlimit_nofile" json:"rlimit_nofile"`

	HelloDeadline  duration.Duration `mapstructure:"hello_deadline" json:"hello_deadline"`
	PingDeadline   duration.Duration `mapstructure:"ping_deadline" json:"ping_deadline"`
	VisitDeadline  duration.Duration `mapstructure:"visit_deadline" json:"visit_deadline"`
}

// DefaultClientConfig returns the config.hpp-documented client defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerPort:         11433,
		TcpShares:          map[string]ShareConfig{},
		ForwarderThreads:   -1,
		WorkerCountInitial: 16,
		WorkerCountLow:     8,
		WorkerCountMore:    16,
		AccessLog:          true,
		RlimitNoFile:       65533,
		PingInterval:       duration.Seconds(20),
	}
}

// DefaultServerConfig returns the config.hpp-documented server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		BindPort:      11433,
		SharingHost:    "0.0.0.0",
		Welcome:        "welcome to zrp server",
		ForwarderThreads: -1,
		AccessLog:      true,
		RlimitNoFile:   65533,
		HelloDeadline:  duration.Seconds(30),
		PingDeadline:   duration.Seconds(60),
		VisitDeadline:  duration.Seconds(20),
	}
}

// ExampleClientConfig returns a fully populated client config suitable
// for dump_config, carrying two sample shares so --full output shows the
// tcp_shares shape.
func ExampleClientConfig() ClientConfig {
	c := DefaultClientConfig()
	c.ServerHost = "example.invalid"
	c.TcpShares["ssh"] = ShareConfig{
		LocalHost:  "127.0.0.1",
		LocalPort:  22,
		RemotePort: 9022,
	}
	c.TcpShares["http"] = ShareConfig{
		LocalHost:  "127.0.0.1",
		LocalPort:  8080,
		RemotePort: 8080,
	}
	return c
}

// ExampleServerConfig returns a fully populated server config for
// dump_config.
func ExampleServerConfig() ServerConfig {
	return DefaultServerConfig()
}

// LoadClientConfig reads path through viper, merging onto
// DefaultClientConfig so any field the file omits keeps its default.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("zconfig: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("zconfig: decoding %s: %w", path, err)
	}

	if cfg.ServerHost == "" {
		return cfg, fmt.Errorf("zconfig: server_host is required")
	}
	for id, s := range cfg.TcpShares {
		if s.LocalHost == "" {
			s.LocalHost = "127.0.0.1"
			cfg.TcpShares[id] = s
		}
		if s.LocalPort == 0 || s.RemotePort == 0 {
			return cfg, fmt.Errorf("zconfig: share %q needs local_port and remote_port", id)
		}
	}

	return cfg, nil
}

// LoadServerConfig reads path through viper, merging onto
// DefaultServerConfig.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("zconfig: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("zconfig: decoding %s: %w", path, err)
	}

	return cfg, nil
}

// DumpJSON renders v (a ClientConfig or ServerConfig) as indented JSON,
// the format dump_config writes to stdout.
func DumpJSON(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
