package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/protocol"
	"github.com/sabouaram/zrp/internal/tunnel/server"
)

var _ = Describe("Share", func() {
	It("pipes a public visitor through the next idle worker", func() {
		sh, err := server.Listen("share1", "127.0.0.1", 0, logger.New(context.Background()))
		Expect(err).NotTo(HaveOccurred())
		defer sh.TryStop()

		go func() { _ = sh.Run(context.Background()) }()

		remote, local := tcpPair()
		w := server.NewWorker("share1", 1, local, logger.New(context.Background()))
		go w.Run()
		sh.GotWorker(context.Background(), w)

		visitor, err := net.Dial("tcp", sh.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		defer visitor.Close()

		fr := protocol.NewFrameReader(remote)
		msgType, _, err := fr.ReadFrame()
		Expect(err).NotTo(HaveOccurred())
		Expect(msgType).To(Equal(protocol.TypeVisitTcpShare))
		Expect(protocol.WriteFrame(remote, protocol.VisitConfirmed{})).To(Succeed())

		_, err = visitor.Write([]byte("hello"))
		Expect(err).NotTo(HaveOccurred())

		buf := make([]byte, 5)
		_ = remote.SetReadDeadline(time.Now().Add(time.Second))
		n, err := remote.Read(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("hello"))
	})
})
