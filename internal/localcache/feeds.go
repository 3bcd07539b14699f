package localcache

import (
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"mercury-client/internal/feed"
	"mercury-client/internal/models"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"
)

// AuthorFeedFilter shows the events of some kinds published by some authors,
// newest first. An empty author list matches everyone.
type AuthorFeedFilter struct {
	lc      *LocalCache
	authors map[string]bool
	kinds   map[int]bool
	limit   int
	key     string
}

func NewAuthorFeedFilter(lc *LocalCache, authors []string, kinds []int, limit int) *AuthorFeedFilter {
	if len(kinds) == 0 {
		kinds = []int{nostr.KindTextNote}
	}

	f := &AuthorFeedFilter{
		lc:      lc,
		authors: make(map[string]bool, len(authors)),
		kinds:   make(map[int]bool, len(kinds)),
		limit:   limit,
	}
	for _, a := range authors {
		f.authors[a] = true
	}
	for _, k := range kinds {
		f.kinds[k] = true
	}

	sortedAuthors := slices.Clone(authors)
	sort.Strings(sortedAuthors)
	uniqueKinds := make([]int, 0, len(f.kinds))
	for k := range f.kinds {
		uniqueKinds = append(uniqueKinds, k)
	}
	slices.Sort(uniqueKinds)
	sortedKinds := make([]string, len(uniqueKinds))
	for i, k := range uniqueKinds {
		sortedKinds[i] = strconv.Itoa(k)
	}
	f.key = strings.Join(sortedAuthors, ",") + "/" + strings.Join(sortedKinds, ",")

	return f
}

func (f *AuthorFeedFilter) matches(ev *models.Event) bool {
	if ev == nil || !f.kinds[ev.Kind] {
		return false
	}
	return len(f.authors) == 0 || f.authors[ev.PubKey]
}

func (f *AuthorFeedFilter) FeedKey() string {
	return f.key
}

func (f *AuthorFeedFilter) Feed() ([]*models.Event, error) {
	return f.lc.Notes(f.matches), nil
}

// ApplyFilter keeps the matching items that are still cached. A version
// replaced while its insert was queued is gone from the cache and never
// reaches the view.
func (f *AuthorFeedFilter) ApplyFilter(items []*models.Event) []*models.Event {
	var out []*models.Event
	for _, ev := range items {
		if !f.matches(ev) {
			continue
		}
		if _, ok := f.lc.Note(ev.ID); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (f *AuthorFeedFilter) Limit() int {
	return f.limit
}

func (f *AuthorFeedFilter) Less(a, b *models.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID < b.ID
}

func (f *AuthorFeedFilter) Key(ev *models.Event) string {
	return ev.ID
}

func (f *AuthorFeedFilter) CreatedAt(ev *models.Event) nostr.Timestamp {
	return ev.CreatedAt
}

// feedListener forwards cache changes to a feed machine
type feedListener struct {
	machine *feed.Machine[*models.Event]
}

func (l feedListener) NewEvents(events []*models.Event) {
	l.machine.UpdateFeedWith(events)
}

func (l feedListener) DeletedEvents(events []*models.Event) {
	l.machine.DeleteFromFeed(events)
}

type openFeed struct {
	machine     *feed.Machine[*models.Event]
	unsubscribe func()
}

// Feeds owns the named feeds of a LocalCache and keeps them subscribed to it
type Feeds struct {
	lc     *LocalCache
	window time.Duration
	open   *xsync.MapOf[string, openFeed]
}

func NewFeeds(lc *LocalCache, window time.Duration) *Feeds {
	return &Feeds{
		lc:     lc,
		window: window,
		open:   xsync.NewMapOf[string, openFeed](),
	}
}

// Open returns the feed called name, creating it with filter if it does not
// exist yet. A new feed is refreshed in the background.
func (fs *Feeds) Open(name string, filter feed.Filter[*models.Event]) *feed.Machine[*models.Event] {
	entry, loaded := fs.open.LoadOrCompute(name, func() openFeed {
		m := feed.NewMachine(filter, feed.Options[*models.Event]{
			Name:      name,
			Window:    fs.window,
			IsDeleted: fs.lc.HasBeenDeleted,
		})
		return openFeed{
			machine:     m,
			unsubscribe: fs.lc.Subscribe(feedListener{machine: m}),
		}
	})
	if !loaded {
		entry.machine.Invalidate()
	}
	return entry.machine
}

// Get returns an open feed
func (fs *Feeds) Get(name string) (*feed.Machine[*models.Event], bool) {
	entry, ok := fs.open.Load(name)
	if !ok {
		return nil, false
	}
	return entry.machine, true
}

// Names returns the names of the open feeds in order
func (fs *Feeds) Names() []string {
	names := make([]string, 0, fs.open.Size())
	fs.open.Range(func(name string, _ openFeed) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Close unsubscribes and stops the feed called name
func (fs *Feeds) Close(name string) bool {
	entry, ok := fs.open.LoadAndDelete(name)
	if !ok {
		return false
	}
	entry.unsubscribe()
	entry.machine.Close()
	return true
}

func (fs *Feeds) CloseAll() {
	for _, name := range fs.Names() {
		fs.Close(name)
	}
}
