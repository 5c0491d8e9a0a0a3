package postgres

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/mercado-local/pkg/config"
)

// NewPool crea el pool de conexiones del servicio de usuarios y verifica la conexión.
// El dial prefiere IPv4: en contenedores sin IPv6 el host puede resolver solo AAAA.
func NewPool(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	poolConfig.ConnConfig.DialFunc = dialPreferIPv4

	// Carga baja: pocas consultas por login.
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("crear pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}
	return pool, nil
}

func dialPreferIPv4(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if ip := lookupIPv4(ctx, host); ip != "" {
		return d.DialContext(ctx, "tcp4", net.JoinHostPort(ip, port))
	}
	return d.DialContext(ctx, network, addr)
}

// lookupIPv4 devuelve la primera IPv4 del host, o "" si no tiene.
func lookupIPv4(ctx context.Context, host string) string {
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			return host
		}
		return ""
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil || len(ips) == 0 {
		return ""
	}
	return ips[0].String()
}
