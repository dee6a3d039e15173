package httpserver

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/warpcomdev/ustreamerd/internal/fpsi"
	"github.com/warpcomdev/ustreamerd/internal/frame"
)

const boundary = "boundarydonotcross"

type sendJob struct {
	exposed   exposedFrame
	dualFinal bool
}

// client is one accepted /stream connection and its streaming state
// machine (spec.md §3 Streaming client / §4.6). Grounded on the
// teacher's internal/mjpeg.Handler: hijack the connection and write
// headers and MIME part framing by hand.
type client struct {
	id       uint64
	key      string
	hostport string

	extraHeaders    bool
	advanceHeaders  bool
	dualFinalFrames bool
	zeroData        bool

	fpsi *fpsi.Instrument

	conn net.Conn
	rw   *bufio.ReadWriter

	tcpNoDelay bool
	ndOnce     sync.Once

	mu              sync.Mutex
	needInitial     bool
	needFirst       bool
	updatedPrevFlag bool
	closed          chan struct{}
	closeOnce       sync.Once

	sendCh chan sendJob
}

func (s *Server) newClientID() uint64 {
	return s.nextID.Add(1)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	conn, rw, err := hijacker.Hijack()
	if err != nil {
		http.Error(w, "hijack failed", http.StatusInternalServerError)
		return
	}

	c := &client{
		id:              s.newClientID(),
		key:             r.URL.Query().Get("key"),
		hostport:        r.RemoteAddr,
		extraHeaders:    s.cfg.ExtraHeaders || r.URL.Query().Get("extra_headers") == "1",
		advanceHeaders:  s.cfg.AdvanceHeaders || r.URL.Query().Get("advance_headers") == "1",
		dualFinalFrames: s.cfg.DualFinalFrames || r.URL.Query().Get("dual_final_frames") == "1",
		zeroData:        s.cfg.ZeroData,
		fpsi:            fpsi.New(),
		conn:            conn,
		rw:              rw,
		tcpNoDelay:      s.cfg.TCPNoDelay,
		needInitial:     true,
		needFirst:       true,
		closed:          make(chan struct{}),
		sendCh:          make(chan sendJob, 1),
	}

	s.clientsMu.Lock()
	s.clients[c.id] = c
	n := len(s.clients)
	s.clientsMu.Unlock()
	clientsTotal.Inc()
	clientsConnected.Set(float64(n))

	go s.runClient(c)
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c.id)
	n := len(s.clients)
	s.clientsMu.Unlock()
	clientsConnected.Set(float64(n))
	c.close()
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func (c *client) needFirstFrame() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needFirst
}

func (c *client) updatedPrev() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedPrevFlag
}

func (c *client) setUpdatedPrev(v bool) {
	c.mu.Lock()
	c.updatedPrevFlag = v
	c.mu.Unlock()
}

// enqueue schedules exposed for delivery; if the client's single slot
// is already full (a slow writer hasn't drained the previous tick),
// the new frame silently replaces it rather than blocking the refresher.
func (c *client) enqueue(exposed *exposedFrame, dualFinal bool) {
	select {
	case <-c.sendCh:
	default:
	}
	select {
	case c.sendCh <- sendJob{exposed: *exposed, dualFinal: dualFinal}:
	default:
	}
}

func (s *Server) runClient(c *client) {
	defer s.removeClient(c)

	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))

	// Drain the client's side of the connection in the background so a
	// half-closed socket is detected without blocking the write path,
	// matching the keepAlive goroutine in the teacher's mjpeg.Handler.
	go func() {
		one := make([]byte, 1)
		for {
			c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, err := c.rw.Read(one); err != nil {
				c.close()
				return
			}
			c.rw.Discard(c.rw.Available())
		}
	}()

	for {
		select {
		case <-c.closed:
			return
		case job := <-c.sendCh:
			if err := c.deliver(&job); err != nil {
				return
			}
		}
	}
}

func (c *client) deliver(job *sendJob) error {
	c.mu.Lock()
	needInitial := c.needInitial
	c.needInitial = false
	c.needFirst = false
	c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))

	if needInitial {
		c.ndOnce.Do(func() {
			if c.tcpNoDelay {
				if tc, ok := c.conn.(*net.TCPConn); ok {
					tc.SetNoDelay(true)
				}
			}
		})
		if err := c.writeInitialHeaders(job.exposed.Format); err != nil {
			return err
		}
	}

	c.fpsi.NoteFrame(job.exposed.Online, job.exposed.Width, job.exposed.Height)

	switch job.exposed.Format {
	case frame.H264, frame.H265:
		if _, err := c.rw.Write(job.exposed.Slice()); err != nil {
			return err
		}
		return c.rw.Flush()
	default:
		return c.deliverMJPEGPart(job)
	}
}

// writeInitialHeaders and the part writers below build the MIME
// framing by hand rather than through mime/multipart.Writer: spec.md's
// advance_headers/extra_headers options need explicit control over
// exactly when each header line is emitted relative to the payload,
// which the library's CreatePart doesn't expose (DESIGN.md).
func (c *client) writeInitialHeaders(format frame.Format) error {
	c.rw.WriteString("HTTP/1.0 200 OK\r\n")
	c.rw.WriteString("Access-Control-Allow-Origin: *\r\n")
	c.rw.WriteString("Cache-Control: no-store, no-cache, must-revalidate, pre-check=0, post-check=0, max-age=0\r\n")
	cookieKey := c.key
	if cookieKey == "" {
		cookieKey = "0"
	}
	fmt.Fprintf(c.rw, "Set-Cookie: stream_client_%d=%s/%d; max-age=30\r\n", c.id, cookieKey, c.id)

	switch format {
	case frame.H264:
		c.rw.WriteString("Content-Type: video/h264\r\n\r\n")
		return c.rw.Flush()
	case frame.H265:
		c.rw.WriteString("Content-Type: video/hevc\r\n\r\n")
		return c.rw.Flush()
	default:
		fmt.Fprintf(c.rw, "Content-Type: multipart/x-mixed-replace;boundary=%s\r\n\r\n", boundary)
		fmt.Fprintf(c.rw, "--%s\r\n", boundary)
		if c.advanceHeaders {
			c.writePartHeader(nil)
		}
		return c.rw.Flush()
	}
}

func (c *client) writePartHeader(e *exposedFrame) {
	fmt.Fprintf(c.rw, "Content-Type: image/jpeg\r\n")
	fmt.Fprintf(c.rw, "X-Timestamp: %s\r\n", strconv.FormatFloat(nowSeconds(), 'f', 6, 64))
	if c.extraHeaders && e != nil {
		writeExtraHeaders(c.rw, e, c.fpsi.FPS())
	}
	c.rw.WriteString("\r\n")
}

func (c *client) deliverMJPEGPart(job *sendJob) error {
	payload := job.exposed.Slice()
	if c.zeroData {
		payload = nil
	}

	if !c.advanceHeaders {
		fmt.Fprintf(c.rw, "Content-Length: %d\r\n", len(payload))
		c.writePartHeader(&job.exposed)
	}
	if _, err := c.rw.Write(payload); err != nil {
		return err
	}

	fmt.Fprintf(c.rw, "\r\n--%s\r\n", boundary)
	if c.advanceHeaders {
		c.writePartHeader(&job.exposed)
	}
	return c.rw.Flush()
}

func writeExtraHeaders(rw *bufio.ReadWriter, e *exposedFrame, clientFPS float64) {
	now := nowSeconds()
	fmt.Fprintf(rw, "X-UStreamer-Online: %s\r\n", boolHeader(e.Online))
	fmt.Fprintf(rw, "X-UStreamer-Dropped: %d\r\n", e.dropped)
	fmt.Fprintf(rw, "X-UStreamer-Width: %d\r\n", e.Width)
	fmt.Fprintf(rw, "X-UStreamer-Height: %d\r\n", e.Height)
	fmt.Fprintf(rw, "X-UStreamer-Client-FPS: %s\r\n", strconv.FormatFloat(clientFPS, 'f', 6, 64))
	fmt.Fprintf(rw, "X-UStreamer-Grab-Ts: %s\r\n", strconv.FormatFloat(e.GrabTS, 'f', 6, 64))
	fmt.Fprintf(rw, "X-UStreamer-Encode-Begin-Ts: %s\r\n", strconv.FormatFloat(e.EncodeBeginTS, 'f', 6, 64))
	fmt.Fprintf(rw, "X-UStreamer-Encode-End-Ts: %s\r\n", strconv.FormatFloat(e.EncodeEndTS, 'f', 6, 64))
	fmt.Fprintf(rw, "X-UStreamer-Expose-Begin-Ts: %s\r\n", strconv.FormatFloat(e.exposeBeginTS, 'f', 6, 64))
	fmt.Fprintf(rw, "X-UStreamer-Expose-Cmp-Ts: %s\r\n", strconv.FormatFloat(e.exposeCmpTS, 'f', 6, 64))
	fmt.Fprintf(rw, "X-UStreamer-Expose-End-Ts: %s\r\n", strconv.FormatFloat(e.exposeEndTS, 'f', 6, 64))
	fmt.Fprintf(rw, "X-UStreamer-Now: %s\r\n", strconv.FormatFloat(now, 'f', 6, 64))
	fmt.Fprintf(rw, "X-UStreamer-Latency: %s\r\n", strconv.FormatFloat(now-e.GrabTS, 'f', 6, 64))
}

func boolHeader(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
