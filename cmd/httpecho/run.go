package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fastpath/netcore/pkg/arpcache"
	"github.com/fastpath/netcore/pkg/httpbridge"
	"github.com/fastpath/netcore/pkg/netapp"
	"github.com/fastpath/netcore/pkg/tcpsock"

	"gvisor.dev/gvisor/pkg/tcpip"
)

func runHTTPEcho(cmd *cobra.Command, args []string) error {
	ip, err := parseIPv4(viper.GetString("httpecho.ip"))
	if err != nil {
		return fmt.Errorf("httpecho: --ip: %w", err)
	}
	gateway, err := parseIPv4(viper.GetString("httpecho.gateway"))
	if err != nil {
		return fmt.Errorf("httpecho: --gateway: %w", err)
	}
	port := uint16(viper.GetUint("httpecho.port"))
	backlog := viper.GetInt("httpecho.backlog")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("httpecho: shutting down")
		cancel()
	}()

	mac := arpcache.MAC{0x02, 0, 0, 0, 0, 2}
	driver := netapp.NewLoopbackDriver(1, mac)

	cfg := netapp.NewConfig().
		WithIP(ip).
		WithGateway(gateway).
		WithDriver(driver)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("httpecho: %s %s %s", r.Proto, r.Method, r.URL.Path)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	})

	log.Printf("httpecho: listening on %s:%d", net.IP(ip[:]), port)

	return cfg.Run(ctx, func(ctx context.Context, wc netapp.WorkerContext) error {
		listener, err := tcpsock.BindWithBacklog(wc.Reactor, port, 0, 0, backlog)
		if err != nil {
			return fmt.Errorf("httpecho: bind: %w", err)
		}
		defer listener.Drop()

		lis := httpbridge.NewListener(listener, tcpip.FullAddress{
			Addr: tcpip.AddrFromSlice(ip[:]),
			Port: port,
		})
		defer lis.Close()

		go func() {
			<-ctx.Done()
			lis.Close()
		}()

		if err := httpbridge.Serve(lis, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("httpecho: serve: %w", err)
		}
		return nil
	})
}
