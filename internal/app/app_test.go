package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storyfeed/internal/auth"
	"storyfeed/internal/config"
	"storyfeed/internal/feed"
	"storyfeed/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig(dir)
	cfg.Remote = config.RemoteConfig{Type: "memory"}
	cfg.Cache = config.CacheConfig{Type: "filesystem", Dir: filepath.Join(dir, "cache")}
	cfg.Session = config.SessionConfig{
		UserID:      "user-1",
		Role:        model.RoleParent,
		DisplayName: "Dana",
		Moderator:   true,
	}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts Options) *StoryApp {
	t.Helper()
	a, err := NewStoryApp(context.Background(), cfg, opts)
	if err != nil {
		t.Fatalf("NewStoryApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func draft() model.StoryDraft {
	return model.StoryDraft{
		Title:           "Bus stop",
		Body:            "<b>Please</b> watch the crossing.",
		TargetAudiences: []string{model.AudienceParents},
	}
}

func TestNewStoryApp_SubmitAndApprove(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, testConfig(t), Options{Operation: "submit"})
	store := a.Store()

	story, err := store.CreateStory(ctx, draft())
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	if story.Body != "Please watch the crossing." {
		t.Errorf("Body = %q, want sanitized text", story.Body)
	}
	if story.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending", story.Status)
	}

	if err := store.ApproveStory(ctx, story.ID); err != nil {
		t.Fatalf("ApproveStory() error = %v", err)
	}
	got, ok := store.Story(story.ID)
	if !ok || got.Status != model.StatusApproved {
		t.Fatalf("Story() = %+v, want approved story", got)
	}
}

func TestNewStoryApp_OfflineServesCache(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	online, err := NewStoryApp(ctx, cfg, Options{Operation: "submit"})
	if err != nil {
		t.Fatalf("NewStoryApp() error = %v", err)
	}
	story, err := online.Store().CreateStory(ctx, draft())
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	online.Close()

	cfg.Session.Offline = true
	offline := newTestApp(t, cfg, Options{Operation: "mine"})

	if !offline.Store().Stale() {
		t.Error("Stale() = false, want true when offline")
	}
	if _, ok := offline.Store().Story(story.ID); !ok {
		t.Errorf("story %s not served from cache", story.ID)
	}
}

func TestNewStoryApp_OfflineWithoutCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Offline = true

	_, err := NewStoryApp(context.Background(), cfg, Options{Operation: "feed"})
	if err == nil {
		t.Fatal("NewStoryApp() succeeded, want error")
	}
	if code := feed.ErrorCode(err); code != feed.CodeCacheUnavailable {
		t.Errorf("ErrorCode() = %q, want %q (err = %v)", code, feed.CodeCacheUnavailable, err)
	}
}

func TestNewStoryApp_EncryptedCache(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Encryption.Type = "test"

	a := newTestApp(t, cfg, Options{Operation: "submit", Passphrase: "pw"})
	if _, err := a.Store().CreateStory(ctx, draft()); err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Cache.Dir, "stories.json"))
	if err != nil {
		t.Fatalf("reading cache file: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("SFENC")) {
		t.Errorf("cache file is not encrypted: %q", data)
	}
}

func TestNewStoryApp_MissingKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encryption.Type = "age"

	_, err := NewStoryApp(context.Background(), cfg, Options{Operation: "feed"})
	if err == nil || !strings.Contains(err.Error(), "keys init") {
		t.Errorf("NewStoryApp() error = %v, want keys init hint", err)
	}
}

func TestNewStoryApp_UnmigratedRemote(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote = config.RemoteConfig{Type: "sqlite", DataDir: filepath.Join(cfg.BaseDir, "db")}

	if _, err := NewStoryApp(context.Background(), cfg, Options{Operation: "feed"}); err == nil {
		t.Fatal("NewStoryApp() on unmigrated remote succeeded, want error")
	}

	if err := MigrateRemote(cfg.Remote); err != nil {
		t.Fatalf("MigrateRemote() error = %v", err)
	}
	newTestApp(t, cfg, Options{Operation: "feed"})
}

func TestStoryApp_ResolveStoryID(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, testConfig(t), Options{Operation: "show"})

	story, err := a.Store().CreateStory(ctx, draft())
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}

	tests := []struct {
		name    string
		prefix  string
		want    string
		wantErr bool
	}{
		{name: "full id", prefix: story.ID, want: story.ID},
		{name: "prefix", prefix: story.ID[:8], want: story.ID},
		{name: "no match", prefix: "zzzz", wantErr: true},
		{name: "empty", prefix: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.ResolveStoryID(tt.prefix)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ResolveStoryID(%q) = %q, want error", tt.prefix, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveStoryID(%q) error = %v", tt.prefix, err)
			}
			if got != tt.want {
				t.Errorf("ResolveStoryID(%q) = %q, want %q", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestStoryApp_ResolveStoryID_HiddenStories(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Remote = config.RemoteConfig{Type: "sqlite", DataDir: filepath.Join(cfg.BaseDir, "db")}
	if err := MigrateRemote(cfg.Remote); err != nil {
		t.Fatalf("MigrateRemote() error = %v", err)
	}

	cfg.Session = config.SessionConfig{UserID: "user-2", Role: model.RoleParent, DisplayName: "Sam"}
	author, err := NewStoryApp(ctx, cfg, Options{Operation: "submit"})
	if err != nil {
		t.Fatalf("NewStoryApp() error = %v", err)
	}
	story, err := author.Store().CreateStory(ctx, draft())
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	if err := author.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	cfg.Session = config.SessionConfig{UserID: "user-3", Role: model.RoleParent, DisplayName: "Lee"}
	viewer := newTestApp(t, cfg, Options{Operation: "like"})
	if got, err := viewer.ResolveStoryID(story.ID); err == nil {
		t.Errorf("viewer ResolveStoryID(pending) = %q, want error", got)
	}

	cfg.Session = config.SessionConfig{UserID: "user-1", Role: model.RoleStaff, DisplayName: "Dana", Moderator: true}
	mod := newTestApp(t, cfg, Options{Operation: "approve"})
	if got, err := mod.ResolveStoryID(story.ID); err != nil || got != story.ID {
		t.Errorf("moderator ResolveStoryID(pending) = %q, %v, want %q", got, err, story.ID)
	}
}

func TestStoryApp_WriteMetrics(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, testConfig(t), Options{Operation: "submit"})
	if _, err := a.Store().CreateStory(ctx, draft()); err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "storyfeed.prom")
	if err := a.WriteMetrics(path); err != nil {
		t.Fatalf("WriteMetrics() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading metrics file: %v", err)
	}
	if !strings.Contains(string(data), `storyfeed_mutations_total{op="create story"} 1`) {
		t.Errorf("metrics file missing mutation counter:\n%s", data)
	}
}

func TestStoryApp_CloseLogsOutcome(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewStoryApp(context.Background(), cfg, Options{Operation: "approve"})
	if err != nil {
		t.Fatalf("NewStoryApp() error = %v", err)
	}
	a.Finish(errors.New("boom"))
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, "storyfeed.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "operation finished\top=approve\tstatus=error") {
		t.Errorf("log missing outcome line:\n%s", data)
	}
}

func TestSetupKeys(t *testing.T) {
	dir := t.TempDir()
	cfg := config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(dir, "storyfeed.pub"),
		PrivateKeyPath: filepath.Join(dir, "storyfeed.key"),
	}

	if err := SetupKeys(cfg, "correct horse"); err != nil {
		t.Fatalf("SetupKeys() error = %v", err)
	}
	if err := SetupKeys(cfg, "correct horse"); err == nil {
		t.Error("second SetupKeys() succeeded, want error")
	}
	if err := SetupKeys(config.EncryptionConfig{Type: "none"}, "pw"); err == nil {
		t.Error("SetupKeys() with encryption disabled succeeded, want error")
	}
}

func TestResolveSession(t *testing.T) {
	secret := "s3cret"
	t.Setenv("STORYFEED_TEST_SECRET", secret)
	token, err := auth.IssueSessionToken(feed.Session{UserID: "tok-user", Role: "staff", Moderator: true}, []byte(secret), time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}

	tests := []struct {
		name    string
		cfg     config.SessionConfig
		want    feed.Session
		wantErr bool
	}{
		{
			name: "explicit fields",
			cfg:  config.SessionConfig{UserID: "u1", Role: "parent", DisplayName: "Dana"},
			want: feed.Session{UserID: "u1", Role: "parent", DisplayName: "Dana", Online: true},
		},
		{
			name: "offline",
			cfg:  config.SessionConfig{UserID: "u1", Offline: true},
			want: feed.Session{UserID: "u1"},
		},
		{
			name: "token wins",
			cfg:  config.SessionConfig{Token: token, SecretEnv: "STORYFEED_TEST_SECRET", UserID: "ignored"},
			want: feed.Session{UserID: "tok-user", Role: "staff", Moderator: true, Online: true},
		},
		{
			name:    "token without secret env",
			cfg:     config.SessionConfig{Token: token},
			wantErr: true,
		},
		{
			name:    "token with unset secret",
			cfg:     config.SessionConfig{Token: token, SecretEnv: "STORYFEED_TEST_UNSET"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveSession(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveSession() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveSession() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveSession() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
