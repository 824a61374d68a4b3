package workspace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// URL returns the address a workspace served on addr can be browsed at.
func URL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, port))
}

// Serve exposes the workspace as static files on addr until ctx is done.
func (s *Sandbox) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("serve workspace: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an already bound listener.
func (s *Sandbox) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           http.FileServer(http.Dir(s.root)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("serving workspace", zap.String("root", s.root), zap.String("url", URL(ln.Addr().String())))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("serve workspace: shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve workspace: %w", err)
	}
}
