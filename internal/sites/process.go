package sites

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const stopTimeout = 5 * time.Second

// process is the child service of a site.
type process struct {
	site string
	cmd  *exec.Cmd
	port int
	// fingerprint identifies the inputs the process was started from.
	fingerprint string
	done        chan struct{}
	err         error
}

// fingerprint hashes what a restart must be triggered by: the command, its environment and the state of the file
// it runs.
func fingerprint(argv []string, env map[string]string, watched string) string {
	h := sha256.New()
	for _, a := range argv {
		fmt.Fprintf(h, "arg %q\n", a)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "env %q=%q\n", k, env[k])
	}
	if info, err := os.Stat(watched); err == nil {
		fmt.Fprintf(h, "file %d %d\n", info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// freePort asks the kernel for an unused loopback port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// startProcess runs argv in dir with PORT set to a free port and env added to the host environment. Output goes
// to the log, tagged with the site.
func startProcess(site, dir string, argv []string, env map[string]string, fp string) (*process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	port, err := freePort()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PORT="+strconv.Itoa(port), "SITE="+site)
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	logger := log.With().Str("site", site).Logger()
	cmd.Stdout = logger.With().Str("stream", "stdout").Logger()
	cmd.Stderr = logger.With().Str("stream", "stderr").Logger()

	if err = cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{site: site, cmd: cmd, port: port, fingerprint: fp, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
		if p.err != nil {
			log.Warn().Err(p.err).Str("site", site).Int("pid", cmd.Process.Pid).Msg("site process exited")
		} else {
			log.Info().Str("site", site).Int("pid", cmd.Process.Pid).Msg("site process exited")
		}
	}()

	log.Info().Str("site", site).Int("pid", cmd.Process.Pid).Int("port", port).Strs("command", argv).
		Msg("started site process")
	return p, nil
}

func (p *process) running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// stop interrupts the process and kills it if it has not exited after stopTimeout.
func (p *process) stop() {
	if !p.running() {
		return
	}
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		log.Warn().Str("site", p.site).Msg("site process did not stop, killing it")
		p.cmd.Process.Kill()
		<-p.done
	}
}
