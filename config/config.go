// Package config loads the property-file configuration for both the
// server and client daemons, following the same go-zoox/config +
// go-zoox/fs loading pattern the teacher's command package used for its
// own server configuration.
package config

import (
	"fmt"

	"github.com/go-zoox/config"
	"github.com/go-zoox/fs"
)

// Server holds the server daemon's configuration.
type Server struct {
	Server struct {
		Bind string `config:"bind"`
		Port int    `config:"port"`
	} `config:"server"`

	Socks struct {
		Bind     string `config:"bind"`
		Port     int    `config:"port"`
		Password string `config:"password"`
	} `config:"config.socks"`
}

// Client holds the client daemon's configuration.
type Client struct {
	Server struct {
		Host string `config:"host"`
		Port int    `config:"port"`
	} `config:"server"`
}

// applyServerDefaults mirrors the defaults the source's ProxyConfig
// constructor hard-codes, so a minimal config file only needs to set
// config.socks.password.
func applyServerDefaults(cfg *Server) {
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4900
	}
	if cfg.Socks.Bind == "" {
		cfg.Socks.Bind = "0.0.0.0"
	}
	if cfg.Socks.Port == 0 {
		cfg.Socks.Port = 1080
	}
}

// LoadServer reads a server config file at filepath.
func LoadServer(filepath string) (*Server, error) {
	if !fs.IsExist(filepath) {
		return nil, fmt.Errorf("config: file not found at %s", filepath)
	}

	cfg := &Server{}
	if err := config.Load(cfg, &config.LoadOptions{FilePath: filepath}); err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %v", filepath, err)
	}

	applyServerDefaults(cfg)

	if cfg.Socks.Password == "" {
		return nil, fmt.Errorf("config: config.socks.password is required")
	}

	return cfg, nil
}

// LoadClient reads a client config file at filepath.
func LoadClient(filepath string) (*Client, error) {
	if !fs.IsExist(filepath) {
		return nil, fmt.Errorf("config: file not found at %s", filepath)
	}

	cfg := &Client{}
	if err := config.Load(cfg, &config.LoadOptions{FilePath: filepath}); err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %v", filepath, err)
	}

	if cfg.Server.Host == "" {
		return nil, fmt.Errorf("config: server.host is required")
	}
	if cfg.Server.Port == 0 {
		return nil, fmt.Errorf("config: server.port is required")
	}

	return cfg, nil
}

// ListenAddr formats the client listener's bind:port.
func (s *Server) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Server.Bind, s.Server.Port)
}

// SocksAddr formats the SOCKS5 front end's bind:port.
func (s *Server) SocksAddr() string {
	return fmt.Sprintf("%s:%d", s.Socks.Bind, s.Socks.Port)
}

// Addr formats the server's host:port the client dials.
func (c *Client) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
