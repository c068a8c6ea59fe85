package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fastpath/netcore/pkg/adminapi"
	"github.com/fastpath/netcore/pkg/adminapi/models"
	"github.com/fastpath/netcore/pkg/arpcache"
	"github.com/fastpath/netcore/pkg/netapp"
	"github.com/fastpath/netcore/pkg/stats"
	"github.com/fastpath/netcore/pkg/tcpsock"
)

func runEchoServer(cmd *cobra.Command, args []string) error {
	ip, err := parseIPv4(viper.GetString("echoserver.ip"))
	if err != nil {
		return fmt.Errorf("echoserver: --ip: %w", err)
	}
	gateway, err := parseIPv4(viper.GetString("echoserver.gateway"))
	if err != nil {
		return fmt.Errorf("echoserver: --gateway: %w", err)
	}
	port := uint16(viper.GetUint("echoserver.port"))
	cores := viper.GetInt("echoserver.cores")
	backlog := viper.GetInt("echoserver.backlog")
	adminAddr := viper.GetString("echoserver.admin-addr")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("echoserver: shutting down")
		cancel()
	}()

	mac := arpcache.MAC{0x02, 0, 0, 0, 0, 1}
	driver := netapp.NewLoopbackDriver(cores, mac)

	var echoStats stats.EchoStats

	var adminSrv *adminapi.Server
	if adminAddr != "" {
		adminSrv = adminapi.New(adminAddr, nil)
		adminSrv.Handler().SetEchoStatsFunc(func() models.EchoStats {
			snap := echoStats.Snapshot()
			return models.EchoStats{
				Connections:   snap.Connections,
				BytesReceived: snap.BytesReceived,
				BytesSent:     snap.BytesSent,
			}
		})
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil {
				log.Printf("echoserver: admin API stopped: %v", err)
			}
		}()
		defer adminSrv.Shutdown(context.Background())
	}

	cfg := netapp.NewConfig().
		WithIP(ip).
		WithGateway(gateway).
		WithDriver(driver)

	log.Printf("echoserver: listening on %s:%d across %d core(s)", net.IP(ip[:]), port, cores)

	return cfg.Run(ctx, func(ctx context.Context, wc netapp.WorkerContext) error {
		if adminSrv != nil {
			adminSrv.Handler().RegisterReactor(wc.QueueIndex, wc.CoreID, wc.Reactor)
		}

		listener, err := tcpsock.BindWithBacklog(wc.Reactor, port, 0, 0, backlog)
		if err != nil {
			return fmt.Errorf("echoserver: queue %d bind: %w", wc.QueueIndex, err)
		}
		defer listener.Drop()

		for {
			stream, err := listener.Accept(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("echoserver: queue %d accept: %v", wc.QueueIndex, err)
				continue
			}
			echoStats.IncConnections()
			connID := uuid.NewString()
			go handleEchoConn(ctx, stream, connID, &echoStats)
		}
	})
}

func handleEchoConn(ctx context.Context, stream *tcpsock.TcpStream, connID string, echoStats *stats.EchoStats) {
	defer stream.Drop()

	buf := make([]byte, 4096)
	for {
		n, err := stream.Recv(ctx, buf)
		if err != nil {
			log.Printf("echoserver: conn %s recv: %v", connID, err)
			return
		}
		if n == 0 {
			return
		}
		echoStats.AddBytesReceived(uint64(n))

		if _, err := stream.Send(ctx, buf[:n]); err != nil {
			log.Printf("echoserver: conn %s send: %v", connID, err)
			return
		}
		echoStats.AddBytesSent(uint64(n))
	}
}

func parseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	parsed := net.ParseIP(s)
	if parsed == nil {
		return out, fmt.Errorf("invalid IPv4 address %q", s)
	}
	v4 := parsed.To4()
	if v4 == nil {
		return out, fmt.Errorf("%q is not an IPv4 address", s)
	}
	copy(out[:], v4)
	return out, nil
}
