package store

import (
	"encoding/json"
	"time"

	appErrors "github.com/undertone-audio/undertone/internal/errors"
	"github.com/undertone-audio/undertone/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// channelRow is the GORM model backing a Channel row.
type channelRow struct {
	Name          string `gorm:"primaryKey"`
	DisplayName   string
	SortOrder     int
	SystemDefined bool
	StreamVolume  float64
	StreamMuted   bool
	MonitorVolume float64
	MonitorMuted  bool
}

func (channelRow) TableName() string { return "channels" }

// routeRow is the GORM model backing a RouteRule row.
type routeRow struct {
	Pattern  string `gorm:"primaryKey"`
	Type     string
	Channel  string
	Priority int
	Seq      int
}

func (routeRow) TableName() string { return "route_rules" }

// profileRow is the GORM model backing a Profile row; the channel
// snapshots and rule list are stored as JSON blobs since their shape is
// fixed by the application, not queried at the SQL level.
type profileRow struct {
	Name         string `gorm:"primaryKey"`
	IsDefault    bool
	ChannelsJSON string
	MixerJSON    string
	RulesJSON    string
}

func (profileRow) TableName() string { return "profiles" }

// eventLogRow is the GORM model backing an event-log entry.
type eventLogRow struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time
	Level     string
	Source    string
	Message   string
	DataJSON  string
}

func (eventLogRow) TableName() string { return "event_log" }

// GormStore is the GORM-backed Store implementation, supporting both
// SQLite and MySQL (spec.md §6), generalized from the corpus' dual
// sqlite/mysql datastore backends.
type GormStore struct {
	db *gorm.DB
}

// Open connects to driver ("sqlite" or "mysql") at dsn, auto-migrates the
// schema, and seeds the default channels/routes/profile if the channels
// table is empty.
func Open(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, appErrors.Newf("unsupported store driver %q", driver).
			Component("store").
			Category(appErrors.CategoryFatal).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, appErrors.Wrap(err).
			Component("store").
			Category(appErrors.CategoryFatal).
			Build()
	}

	if err := db.AutoMigrate(&channelRow{}, &routeRow{}, &profileRow{}, &eventLogRow{}); err != nil {
		return nil, appErrors.Wrap(err).
			Component("store").
			Category(appErrors.CategoryFatal).
			Build()
	}

	s := &GormStore{db: db}
	if err := s.seedIfEmpty(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GormStore) seedIfEmpty() error {
	var count int64
	if err := s.db.Model(&channelRow{}).Count(&count).Error; err != nil {
		return appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	if count > 0 {
		return nil
	}

	for _, ch := range DefaultChannelSeeds() {
		if err := s.SaveChannelState(ch.Name, ch); err != nil {
			return err
		}
	}
	for _, rule := range DefaultRouteSeeds() {
		if err := s.SaveRoute(rule); err != nil {
			return err
		}
	}
	return s.SaveProfile(DefaultProfileSeed())
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) LoadChannels() ([]model.Channel, error) {
	var rows []channelRow
	if err := s.db.Order("sort_order").Find(&rows).Error; err != nil {
		return nil, appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	out := make([]model.Channel, len(rows))
	for i, r := range rows {
		out[i] = model.Channel{
			Name:          r.Name,
			DisplayName:   r.DisplayName,
			SortOrder:     r.SortOrder,
			SystemDefined: r.SystemDefined,
			StreamVolume:  r.StreamVolume,
			StreamMuted:   r.StreamMuted,
			MonitorVolume: r.MonitorVolume,
			MonitorMuted:  r.MonitorMuted,
		}
	}
	return out, nil
}

func (s *GormStore) SaveChannelState(name string, ch model.Channel) error {
	row := channelRow{
		Name:          name,
		DisplayName:   ch.DisplayName,
		SortOrder:     ch.SortOrder,
		SystemDefined: ch.SystemDefined,
		StreamVolume:  ch.StreamVolume,
		StreamMuted:   ch.StreamMuted,
		MonitorVolume: ch.MonitorVolume,
		MonitorMuted:  ch.MonitorMuted,
	}
	if err := s.db.Save(&row).Error; err != nil {
		return appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	return nil
}

func (s *GormStore) LoadRoutes() ([]model.RouteRule, error) {
	var rows []routeRow
	if err := s.db.Order("seq").Find(&rows).Error; err != nil {
		return nil, appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	out := make([]model.RouteRule, len(rows))
	for i, r := range rows {
		out[i] = model.RouteRule{
			Pattern:  r.Pattern,
			Type:     model.MatchType(r.Type),
			Channel:  r.Channel,
			Priority: r.Priority,
			Seq:      r.Seq,
		}
	}
	return out, nil
}

func (s *GormStore) SaveRoute(rule model.RouteRule) error {
	row := routeRow{
		Pattern:  rule.Pattern,
		Type:     string(rule.Type),
		Channel:  rule.Channel,
		Priority: rule.Priority,
		Seq:      rule.Seq,
	}
	if err := s.db.Save(&row).Error; err != nil {
		return appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	return nil
}

func (s *GormStore) DeleteRoute(pattern string) error {
	if err := s.db.Delete(&routeRow{}, "pattern = ?", pattern).Error; err != nil {
		return appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	return nil
}

func (s *GormStore) ListProfiles() ([]model.Profile, error) {
	var rows []profileRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	out := make([]model.Profile, 0, len(rows))
	for _, r := range rows {
		p, err := decodeProfileRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *GormStore) LoadProfile(name string) (model.Profile, error) {
	var row profileRow
	if err := s.db.First(&row, "name = ?", name).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return model.Profile{}, ErrNotFound
		}
		return model.Profile{}, appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	return decodeProfileRow(row)
}

func (s *GormStore) SaveProfile(p model.Profile) error {
	channelsJSON, err := json.Marshal(p.Channels)
	if err != nil {
		return appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	mixerJSON, err := json.Marshal(p.Mixer)
	if err != nil {
		return appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	rulesJSON, err := json.Marshal(p.Rules)
	if err != nil {
		return appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}

	row := profileRow{
		Name:         p.Name,
		IsDefault:    p.Default,
		ChannelsJSON: string(channelsJSON),
		MixerJSON:    string(mixerJSON),
		RulesJSON:    string(rulesJSON),
	}
	if err := s.db.Save(&row).Error; err != nil {
		return appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	return nil
}

// DeleteProfile deletes the named profile, returning false without error
// if it is the default profile (spec.md §4.5, §8).
func (s *GormStore) DeleteProfile(name string) (bool, error) {
	var row profileRow
	if err := s.db.First(&row, "name = ?", name).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, ErrNotFound
		}
		return false, appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	if row.IsDefault {
		return false, nil
	}
	if err := s.db.Delete(&profileRow{}, "name = ?", name).Error; err != nil {
		return false, appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	return true, nil
}

func (s *GormStore) GetDefaultProfile() (model.Profile, error) {
	var row profileRow
	if err := s.db.First(&row, "is_default = ?", true).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return model.Profile{}, ErrNotFound
		}
		return model.Profile{}, appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	return decodeProfileRow(row)
}

func (s *GormStore) LogEvent(level LogLevel, source, message string, data map[string]any) error {
	dataJSON := ""
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
		}
		dataJSON = string(b)
	}
	row := eventLogRow{
		Timestamp: time.Now(),
		Level:     string(level),
		Source:    source,
		Message:   message,
		DataJSON:  dataJSON,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	return nil
}

func decodeProfileRow(r profileRow) (model.Profile, error) {
	var channels []model.ChannelSnapshot
	var mixer model.MixerState
	var rules []model.RouteRule

	if err := json.Unmarshal([]byte(r.ChannelsJSON), &channels); err != nil {
		return model.Profile{}, appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	if err := json.Unmarshal([]byte(r.MixerJSON), &mixer); err != nil {
		return model.Profile{}, appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}
	if err := json.Unmarshal([]byte(r.RulesJSON), &rules); err != nil {
		return model.Profile{}, appErrors.Wrap(err).Component("store").Category(appErrors.CategoryInvariant).Build()
	}

	return model.Profile{
		Name:     r.Name,
		Default:  r.IsDefault,
		Channels: channels,
		Mixer:    mixer,
		Rules:    rules,
	}, nil
}

var _ Store = (*GormStore)(nil)
