package appdirs

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// fakeHost records which host lookups resolve consulted.
type fakeHost struct {
	env       map[string]string
	exe       string
	configDir string
	cacheDir  string
	called    []string
}

func (h *fakeHost) deps(goos string) resolveDeps {
	return resolveDeps{
		goos:   goos,
		getenv: func(key string) string { return h.env[key] },
		executable: func() (string, error) {
			h.called = append(h.called, "executable")
			return h.exe, nil
		},
		userConfigDir: func() (string, error) {
			h.called = append(h.called, "config")
			return h.configDir, nil
		},
		userCacheDir: func() (string, error) {
			h.called = append(h.called, "cache")
			return h.cacheDir, nil
		},
	}
}

func TestResolveLayouts(t *testing.T) {
	exe := filepath.Join("/", "apps", "ViralClipper", "clipper")
	portableData := filepath.Join(filepath.Dir(exe), "data")
	home := filepath.Join("/", "srv", "clipper")
	roaming := filepath.Join("C:", "Users", "alice", "AppData", "Roaming")
	local := filepath.Join("C:", "Users", "alice", "AppData", "Local")
	windowsData := filepath.Join(local, "ViralClipper")

	cases := []struct {
		name       string
		goos       string
		env        map[string]string
		want       Paths
		wantCalled []string
	}{
		{
			name: "portable next to the executable",
			goos: "linux",
			env:  map[string]string{PortableEnv: "true", HomeEnv: home},
			want: Paths{
				Portable:   true,
				ConfigDir:  filepath.Join(portableData, "config"),
				ConfigFile: filepath.Join(portableData, "config", "config.toml"),
				LogDir:     filepath.Join(portableData, "logs"),
				OutputDir:  filepath.Join(portableData, "output"),
				CacheDir:   filepath.Join(portableData, "cache"),
				WorkDir:    filepath.Join(portableData, "cache", "work"),
			},
			wantCalled: []string{"executable"},
		},
		{
			name: "home env roots everything",
			goos: "windows",
			env:  map[string]string{HomeEnv: home},
			want: Paths{
				ConfigDir:  filepath.Join(home, "config"),
				ConfigFile: filepath.Join(home, "config", "config.toml"),
				LogDir:     filepath.Join(home, "logs"),
				OutputDir:  filepath.Join(home, "output"),
				CacheDir:   filepath.Join(home, "cache"),
				WorkDir:    filepath.Join(home, "cache", "work"),
			},
		},
		{
			name: "windows user dirs",
			goos: "windows",
			want: Paths{
				ConfigDir:  filepath.Join(roaming, "ViralClipper"),
				ConfigFile: filepath.Join(roaming, "ViralClipper", "config.toml"),
				LogDir:     filepath.Join(windowsData, "logs"),
				OutputDir:  filepath.Join(windowsData, "output"),
				CacheDir:   filepath.Join(windowsData, "cache"),
				WorkDir:    filepath.Join(windowsData, "cache", "work"),
			},
			wantCalled: []string{"config", "cache"},
		},
		{
			name: "relative defaults elsewhere",
			goos: "darwin",
			want: Paths{
				ConfigDir:  "config",
				ConfigFile: filepath.Join("config", "config.toml"),
				LogDir:     ".",
				OutputDir:  "output",
				CacheDir:   "cache",
				WorkDir:    filepath.Join("cache", "work"),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			host := &fakeHost{env: tc.env, exe: exe, configDir: roaming, cacheDir: local}
			got, err := resolve(host.deps(tc.goos))
			if err != nil {
				t.Fatalf("resolve() returned unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("resolve() = %+v, want %+v", got, tc.want)
			}
			if !reflect.DeepEqual(host.called, tc.wantCalled) {
				t.Fatalf("host lookups = %v, want %v", host.called, tc.wantCalled)
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	cases := map[string]struct {
		deps    resolveDeps
		wantErr string
	}{
		"portable executable lookup fails": {
			deps: resolveDeps{
				goos:       "windows",
				getenv:     func(key string) string { return map[string]string{PortableEnv: "1"}[key] },
				executable: func() (string, error) { return "", errors.New("no executable") },
			},
			wantErr: "no executable",
		},
		"blank windows config dir": {
			deps: resolveDeps{
				goos:          "windows",
				getenv:        func(string) string { return "" },
				userConfigDir: func() (string, error) { return " ", nil },
			},
			wantErr: "user config dir is empty",
		},
		"blank windows cache dir": {
			deps: resolveDeps{
				goos:          "windows",
				getenv:        func(string) string { return "" },
				userConfigDir: func() (string, error) { return "C:/cfg", nil },
				userCacheDir:  func() (string, error) { return "", nil },
			},
			wantErr: "user cache dir is empty",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := resolve(tc.deps)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("resolve() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestIsPortableEnabled(t *testing.T) {
	for value, want := range map[string]bool{
		"":         false,
		"0":        false,
		"false":    false,
		"1":        true,
		"true":     true,
		"TRUE":     true,
		"  true  ": true,
	} {
		if got := isPortableEnabled(value); got != want {
			t.Fatalf("isPortableEnabled(%q) = %t, want %t", value, got, want)
		}
	}
}
