// Package notify delivers batch confirmations through shoutrrr service URLs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/okian/satobs/internal/domain/batch"
	"github.com/okian/satobs/pkg/logger"
	"github.com/okian/satobs/pkg/metrics"
)

// AddressPlaceholder in the service URL is replaced by the escaped
// destination address, e.g. smtp://host:25/?from=a@b&to={address}.
const AddressPlaceholder = "{address}"

const defaultTimeout = 10 * time.Second

// ErrNoURL is returned when no service URL is configured.
var ErrNoURL = errors.New("notification url is required")

type sender interface {
	Send(message string, params *stypes.Params) []error
}

type senderFactory func(serviceURL string, timeout time.Duration) (sender, error)

func shoutrrrSender(serviceURL string, timeout time.Duration) (sender, error) {
	s, err := shoutrrr.CreateSender(serviceURL)
	if err != nil {
		return nil, err
	}
	s.Timeout = timeout
	s.SetLogger(log.New(io.Discard, "", 0))
	return s, nil
}

// Dispatcher sends confirmations asynchronously. Delivery failures are
// logged and counted only.
type Dispatcher struct {
	template string
	timeout  time.Duration
	factory  senderFactory
	logger   logger.Logger
	wg       sync.WaitGroup
}

var _ batch.Dispatcher = (*Dispatcher)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds one delivery.
func WithTimeout(d time.Duration) Option {
	return func(n *Dispatcher) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Dispatcher) {
		if l != nil {
			n.logger = l
		}
	}
}

func withSenderFactory(f senderFactory) Option {
	return func(n *Dispatcher) { n.factory = f }
}

// New creates a Dispatcher for a shoutrrr service URL template.
func New(serviceURL string, opts ...Option) (*Dispatcher, error) {
	if strings.TrimSpace(serviceURL) == "" {
		return nil, ErrNoURL
	}
	d := &Dispatcher{template: serviceURL, timeout: defaultTimeout, factory: shoutrrrSender}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("notify")
	}
	return d, nil
}

// Dispatch implements batch.Dispatcher. It returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, c batch.Confirmation) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.send(c); err != nil {
			metrics.RecordNotification("error")
			d.logger.Warn(ctx, "confirmation not delivered",
				logger.String("batch_id", c.BatchID),
				logger.Error(err),
			)
			return
		}
		metrics.RecordNotification("sent")
		d.logger.Debug(ctx, "confirmation delivered", logger.String("batch_id", c.BatchID))
	}()
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) send(c batch.Confirmation) error {
	serviceURL := strings.ReplaceAll(d.template, AddressPlaceholder, url.QueryEscape(c.Address))
	s, err := d.factory(serviceURL, d.timeout)
	if err != nil {
		// the URL may carry credentials
		return errors.New("invalid notification url")
	}
	params := stypes.Params{}
	params.SetTitle("Observation upload confirmation")
	for _, e := range s.Send(Message(c), &params) {
		if e != nil {
			return e
		}
	}
	return nil
}

// Message renders the confirmation body.
func Message(c batch.Confirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s stored %s observations (%s new, %s already on record, %s rejected).\n",
		c.BatchID,
		humanize.Comma(int64(len(c.ObservationIDs))),
		humanize.Comma(int64(c.Summary.Created)),
		humanize.Comma(int64(c.Summary.Duplicates)),
		humanize.Comma(int64(c.Summary.Rejected)),
	)
	b.WriteString("Observation IDs: ")
	for i, id := range c.ObservationIDs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatUint(id, 10))
	}
	return b.String()
}
