package services

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/qianlnk/werewolf-companion/models"
	"github.com/qianlnk/werewolf-companion/storage"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*GameService, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	gs, err := NewGameService(context.Background(), store, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGameService: %v", err)
	}
	t.Cleanup(gs.Close)
	return gs, store
}

func intPtr(v int) *int          { return &v }
func stringPtr(v string) *string { return &v }

func stored(t *testing.T, store storage.Store, key string) string {
	t.Helper()
	raw, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("store.Get(%s): %v", key, err)
	}
	return raw
}

func TestNewGameServiceInitializesAndPersists(t *testing.T) {
	gs, store := newTestService(t)

	want := models.GameData{Players: []string{}, Roles: []string{}, CurrentPage: models.PageWelcome}
	if got := *gs.GameData(); !reflect.DeepEqual(got, want) {
		t.Fatalf("GameData = %+v, want %+v", got, want)
	}
	const wantJSON = `{"players":[],"roles":[],"currentIndex":0,"currentPage":"welcome","currentNight":0}`
	if got := stored(t, store, GameDataKey); got != wantJSON {
		t.Fatalf("stored gameData = %s, want %s", got, wantJSON)
	}
	if _, err := store.Get(context.Background(), RoleDataKey); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("roleData should not be stored yet, err = %v", err)
	}
}

func TestNewGameServiceRestoresFromStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Set(ctx, GameDataKey, `{"players":["Alice","Bob"],"roles":["villager","werewolf"],"currentIndex":2,"currentPage":"night","currentNight":3}`)
	_ = store.Set(ctx, RoleDataKey, `{"werewolves":[{"name":"Bob","Killed":["Carol"]}],"villagers":[{"name":"Alice"}]}`)

	gs, err := NewGameService(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGameService: %v", err)
	}
	defer gs.Close()

	gameData, roleData := gs.Snapshot()
	if gameData.CurrentNight != 3 || gameData.CurrentPage != "night" || len(gameData.Players) != 2 {
		t.Fatalf("restored gameData = %+v", gameData)
	}
	if len(roleData.Werewolves) != 1 || roleData.Werewolves[0].Killed[0] != "Carol" {
		t.Fatalf("restored roleData = %+v", roleData)
	}
}

func TestNewGameServiceNullListsReadAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Set(ctx, GameDataKey, `{"players":null,"roles":null,"currentIndex":0,"currentPage":"welcome","currentNight":0}`)

	gs, err := NewGameService(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGameService: %v", err)
	}
	defer gs.Close()

	gameData := gs.GameData()
	if gameData.Players == nil || gameData.Roles == nil {
		t.Fatalf("gameData lists = %#v, %#v", gameData.Players, gameData.Roles)
	}
	raw, _ := json.Marshal(gameData)
	if want := `{"players":[],"roles":[],"currentIndex":0,"currentPage":"welcome","currentNight":0}`; string(raw) != want {
		t.Fatalf("gameData = %s, want %s", raw, want)
	}
}

func TestClosedServiceRejectsWrites(t *testing.T) {
	ctx := context.Background()
	gs, store := newTestService(t)
	_ = gs.UpdateGameData(ctx, GameDataUpdate{Roles: []string{"werewolf", "witch"}})
	_ = gs.AddPlayer(ctx, "Wolf", "werewolf")
	_ = gs.AddPlayer(ctx, "Wendy", "witch")
	gameBefore := stored(t, store, GameDataKey)
	rolesBefore := stored(t, store, RoleDataKey)

	gs.Close()

	writes := map[string]func() error{
		"UpdatePage":     func() error { return gs.UpdatePage(ctx, models.PageNight) },
		"UpdateGameData": func() error { return gs.UpdateGameData(ctx, GameDataUpdate{CurrentNight: intPtr(5)}) },
		"Reset":          func() error { return gs.Reset(ctx) },
		"Restart":        func() error { return gs.Restart(ctx) },
		"AddPlayer":      func() error { return gs.AddPlayer(ctx, "Late", "villager") },
		"AddRoleData": func() error {
			_, err := gs.AddRoleData(ctx, "Late", "villager")
			return err
		},
		"NextNight": func() error {
			_, err := gs.NextNight(ctx)
			return err
		},
		"RecordKill":  func() error { return gs.RecordKill(ctx, "Wolf", "Wendy") },
		"WitchPoison": func() error { return gs.WitchPoison(ctx, "Wolf") },
	}
	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			if err := write(); !errors.Is(err, ErrSessionClosed) {
				t.Fatalf("err = %v, want ErrSessionClosed", err)
			}
		})
	}

	if got := stored(t, store, GameDataKey); got != gameBefore {
		t.Fatalf("gameData written after Close: %s", got)
	}
	if got := stored(t, store, RoleDataKey); got != rolesBefore {
		t.Fatalf("roleData written after Close: %s", got)
	}
}

func TestNewGameServiceCorruptStorage(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"game data", GameDataKey},
		{"role data", RoleDataKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := storage.NewMemoryStore()
			_ = store.Set(ctx, GameDataKey, `{"players":[],"roles":[],"currentIndex":0,"currentPage":"welcome","currentNight":0}`)
			_ = store.Set(ctx, tt.key, `{not json`)

			if _, err := NewGameService(ctx, store, zap.NewNop()); !errors.Is(err, ErrCorruptSession) {
				t.Fatalf("err = %v, want ErrCorruptSession", err)
			}
		})
	}
}

func TestRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	gs, store := newTestService(t)

	if err := gs.UpdateGameData(ctx, GameDataUpdate{Roles: []string{"werewolf", "witch", "seer", "hunter", "guardian", "villager"}}); err != nil {
		t.Fatalf("UpdateGameData: %v", err)
	}
	for i, name := range []string{"Ann", "Ben", "Cat", "Dan", "Eve", "Fay"} {
		if err := gs.AddPlayer(ctx, name, gs.GameData().Roles[i]); err != nil {
			t.Fatalf("AddPlayer: %v", err)
		}
	}
	if err := gs.RecordKill(ctx, "Ann", "Fay"); err != nil {
		t.Fatalf("RecordKill: %v", err)
	}
	if err := gs.WitchPoison(ctx, "Ann"); err != nil {
		t.Fatalf("WitchPoison: %v", err)
	}
	wantGame, wantRoles := gs.Snapshot()

	reloaded, err := NewGameService(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer reloaded.Close()
	gotGame, gotRoles := reloaded.Snapshot()

	if !reflect.DeepEqual(gotGame, wantGame) {
		t.Fatalf("gameData after reload = %+v, want %+v", gotGame, wantGame)
	}
	if !reflect.DeepEqual(gotRoles, wantRoles) {
		t.Fatalf("roleData after reload = %+v, want %+v", gotRoles, wantRoles)
	}
}

func TestRoleDataWireFormat(t *testing.T) {
	ctx := context.Background()
	gs, store := newTestService(t)

	if _, err := gs.AddRoleData(ctx, "Bob", "werewolf"); err != nil {
		t.Fatalf("AddRoleData: %v", err)
	}
	if _, err := gs.AddRoleData(ctx, "Wendy", "witch"); err != nil {
		t.Fatalf("AddRoleData: %v", err)
	}

	const want = `{"werewolves":[{"name":"Bob","Killed":[]}],"witch":{"name":"Wendy","poison":"","potion":"","killedBy":""}}`
	if got := stored(t, store, RoleDataKey); got != want {
		t.Fatalf("stored roleData = %s, want %s", got, want)
	}
}

func TestAddRoleDataRecognizedRoles(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{"werewolf", `{"werewolves":[{"name":"P","Killed":[]}]}`},
		{"villager", `{"villagers":[{"name":"P"}]}`},
		{"witch", `{"witch":{"name":"P","poison":"","potion":"","killedBy":""}}`},
		{"seer", `{"seer":{"name":"P","killedBy":""}}`},
		{"hunter", `{"hunter":{"name":"P","retaliated":"","killedBy":""}}`},
		{"guardian", `{"guardian":{"name":"P","protecting":"","killedBy":""}}`},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			gs, _ := newTestService(t)
			ok, err := gs.AddRoleData(context.Background(), "P", tt.role)
			if err != nil || !ok {
				t.Fatalf("AddRoleData = %v, %v", ok, err)
			}
			got, _ := json.Marshal(gs.RoleData())
			if string(got) != tt.want {
				t.Fatalf("roleData = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAddRoleDataUnknownRoleIsNoop(t *testing.T) {
	for _, role := range []string{"", "cupid", "Werewolf", "guard", "whitewolf"} {
		t.Run(role, func(t *testing.T) {
			gs, store := newTestService(t)
			before := gs.RoleData().Clone()

			ok, err := gs.AddRoleData(context.Background(), "P", role)
			if err != nil || ok {
				t.Fatalf("AddRoleData = %v, %v, want false, nil", ok, err)
			}
			if !reflect.DeepEqual(gs.RoleData().Clone(), before) {
				t.Fatalf("roleData changed: %+v", gs.RoleData())
			}
			if _, err := store.Get(context.Background(), RoleDataKey); !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("unknown role persisted roleData, err = %v", err)
			}
		})
	}
}

func TestAddRoleDataSingletonReplaces(t *testing.T) {
	ctx := context.Background()
	gs, _ := newTestService(t)
	_, _ = gs.AddRoleData(ctx, "First", "seer")
	_, _ = gs.AddRoleData(ctx, "Second", "seer")
	if got := gs.RoleData().Seer.Name; got != "Second" {
		t.Fatalf("seer = %q, want Second", got)
	}
}

func TestAddPlayerAppendCondition(t *testing.T) {
	tests := []struct {
		name       string
		players    []string
		roles      []string
		index      int
		wantAppend bool
	}{
		{"fewer players and cursor at end", []string{"A"}, []string{"villager", "seer"}, 1, true},
		{"cursor past end", []string{"A"}, []string{"villager", "seer"}, 3, true},
		{"cursor mid roster", []string{"A"}, []string{"villager", "seer"}, 0, false},
		{"roster full", []string{"A", "B"}, []string{"villager", "seer"}, 2, false},
		{"no roles", []string{}, []string{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			gs, _ := newTestService(t)
			err := gs.UpdateGameData(ctx, GameDataUpdate{
				Players:      tt.players,
				Roles:        tt.roles,
				CurrentIndex: intPtr(tt.index),
			})
			if err != nil {
				t.Fatalf("UpdateGameData: %v", err)
			}

			if err := gs.AddPlayer(ctx, "New", "villager"); err != nil {
				t.Fatalf("AddPlayer: %v", err)
			}

			gameData := gs.GameData()
			appended := len(gameData.Players) == len(tt.players)+1
			if appended != tt.wantAppend {
				t.Fatalf("appended = %v, want %v (players %v)", appended, tt.wantAppend, gameData.Players)
			}
			if gameData.CurrentIndex != tt.index+1 {
				t.Fatalf("currentIndex = %d, want %d", gameData.CurrentIndex, tt.index+1)
			}
			if n := len(gs.RoleData().Villagers); n != 1 {
				t.Fatalf("villagers = %d, want 1 regardless of append", n)
			}
		})
	}
}

func TestAddPlayerScenario(t *testing.T) {
	ctx := context.Background()
	gs, store := newTestService(t)

	if err := gs.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := gs.UpdateGameData(ctx, GameDataUpdate{Roles: []string{"villager", "werewolf"}}); err != nil {
		t.Fatalf("UpdateGameData: %v", err)
	}
	if err := gs.AddPlayer(ctx, "Alice", "villager"); err != nil {
		t.Fatalf("AddPlayer Alice: %v", err)
	}
	if err := gs.AddPlayer(ctx, "Bob", "werewolf"); err != nil {
		t.Fatalf("AddPlayer Bob: %v", err)
	}

	gameData, roleData := gs.Snapshot()
	if !reflect.DeepEqual(gameData.Players, []string{"Alice", "Bob"}) {
		t.Fatalf("players = %v", gameData.Players)
	}
	if gameData.CurrentIndex != 2 {
		t.Fatalf("currentIndex = %d, want 2", gameData.CurrentIndex)
	}
	if !reflect.DeepEqual(roleData.Villagers, []models.VillagerData{{Name: "Alice"}}) {
		t.Fatalf("villagers = %+v", roleData.Villagers)
	}
	if !reflect.DeepEqual(roleData.Werewolves, []models.WerewolfData{{Name: "Bob", Killed: []string{}}}) {
		t.Fatalf("werewolves = %+v", roleData.Werewolves)
	}

	const wantRoles = `{"werewolves":[{"name":"Bob","Killed":[]}],"villagers":[{"name":"Alice"}]}`
	if got := stored(t, store, RoleDataKey); got != wantRoles {
		t.Fatalf("stored roleData = %s, want %s", got, wantRoles)
	}
}

func TestUpdateGameDataPresence(t *testing.T) {
	ctx := context.Background()
	gs, _ := newTestService(t)

	err := gs.UpdateGameData(ctx, GameDataUpdate{
		Players:      []string{"A", "B"},
		Roles:        []string{"seer", "witch"},
		CurrentIndex: intPtr(2),
		CurrentPage:  stringPtr(models.PageNight),
		CurrentNight: intPtr(4),
	})
	if err != nil {
		t.Fatalf("UpdateGameData: %v", err)
	}

	// 省略的字段保持不变
	if err := gs.UpdateGameData(ctx, GameDataUpdate{}); err != nil {
		t.Fatalf("UpdateGameData: %v", err)
	}
	want := models.GameData{
		Players:      []string{"A", "B"},
		Roles:        []string{"seer", "witch"},
		CurrentIndex: 2,
		CurrentPage:  models.PageNight,
		CurrentNight: 4,
	}
	if got := gs.GameData().Clone(); !reflect.DeepEqual(got, want) {
		t.Fatalf("after empty update = %+v, want %+v", got, want)
	}

	// 显式的 0 会被写入
	if err := gs.UpdateGameData(ctx, GameDataUpdate{CurrentIndex: intPtr(0), CurrentNight: intPtr(0)}); err != nil {
		t.Fatalf("UpdateGameData: %v", err)
	}
	if got := gs.GameData(); got.CurrentIndex != 0 || got.CurrentNight != 0 {
		t.Fatalf("zero values ignored: %+v", got)
	}

	// 空列表也是显式值
	if err := gs.UpdateGameData(ctx, GameDataUpdate{Players: []string{}}); err != nil {
		t.Fatalf("UpdateGameData: %v", err)
	}
	if got := gs.GameData().Players; got == nil || len(got) != 0 {
		t.Fatalf("players = %#v, want empty", got)
	}
}

func TestUpdateGameDataCopiesInput(t *testing.T) {
	gs, _ := newTestService(t)
	players := []string{"A"}
	_ = gs.UpdateGameData(context.Background(), GameDataUpdate{Players: players})
	players[0] = "Z"
	if got := gs.GameData().Players[0]; got != "A" {
		t.Fatalf("service aliased caller slice: %q", got)
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	ctx := context.Background()
	gs, store := newTestService(t)
	_ = gs.UpdateGameData(ctx, GameDataUpdate{Players: []string{"A"}, Roles: []string{"seer"}, CurrentNight: intPtr(2)})
	_, _ = gs.AddRoleData(ctx, "A", "seer")

	if err := gs.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	want := models.GameData{Players: []string{}, Roles: []string{}, CurrentPage: models.PageWelcome}
	if got := gs.GameData().Clone(); !reflect.DeepEqual(got, want) {
		t.Fatalf("GameData after reset = %+v, want %+v", got, want)
	}
	if got := gs.RoleData(); !reflect.DeepEqual(*got, models.RoleData{}) {
		t.Fatalf("RoleData after reset = %+v", got)
	}
	if got := stored(t, store, RoleDataKey); got != `{}` {
		t.Fatalf("stored roleData after reset = %s", got)
	}
}

func TestRestartKeepsPlayers(t *testing.T) {
	ctx := context.Background()
	gs, store := newTestService(t)
	_ = gs.UpdateGameData(ctx, GameDataUpdate{Roles: []string{"villager", "werewolf"}})
	_ = gs.AddPlayer(ctx, "Alice", "villager")
	_ = gs.AddPlayer(ctx, "Bob", "werewolf")
	_, _ = gs.NextNight(ctx)

	if err := gs.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	want := models.GameData{
		Players:     []string{"Alice", "Bob"},
		Roles:       []string{},
		CurrentPage: models.PageGameSetup,
	}
	if got := gs.GameData().Clone(); !reflect.DeepEqual(got, want) {
		t.Fatalf("GameData after restart = %+v, want %+v", got, want)
	}
	if got := gs.RoleData(); !reflect.DeepEqual(*got, models.RoleData{}) {
		t.Fatalf("RoleData after restart = %+v", got)
	}

	reloaded, err := NewGameService(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer reloaded.Close()
	if got := reloaded.GameData().Clone(); !reflect.DeepEqual(got, want) {
		t.Fatalf("reloaded after restart = %+v, want %+v", got, want)
	}
}

func TestGameDataIsLiveReference(t *testing.T) {
	ctx := context.Background()
	gs, _ := newTestService(t)
	live := gs.GameData()
	_ = gs.UpdatePage(ctx, models.PageRoleReveal)
	if live.CurrentPage != models.PageRoleReveal {
		t.Fatalf("live reference did not observe update: %q", live.CurrentPage)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	ctx := context.Background()
	gs, _ := newTestService(t)
	_ = gs.UpdateGameData(ctx, GameDataUpdate{Players: []string{"A"}, Roles: []string{"werewolf"}})
	_ = gs.AddPlayer(ctx, "A", "werewolf")

	gameData, roleData := gs.Snapshot()
	gameData.Players[0] = "Z"
	roleData.Werewolves[0].Killed = append(roleData.Werewolves[0].Killed, "X")

	if gs.GameData().Players[0] != "A" {
		t.Fatal("snapshot aliases players")
	}
	if len(gs.RoleData().Werewolves[0].Killed) != 0 {
		t.Fatal("snapshot aliases werewolf kills")
	}
}

func TestPassTo(t *testing.T) {
	ctx := context.Background()
	gs, _ := newTestService(t)
	_ = gs.UpdateGameData(ctx, GameDataUpdate{Players: []string{"Alice", "Bob"}, CurrentIndex: intPtr(1)})
	if got := gs.PassTo(); got != "Bob" {
		t.Fatalf("PassTo = %q, want Bob", got)
	}
	_ = gs.UpdateGameData(ctx, GameDataUpdate{CurrentIndex: intPtr(2)})
	if got := gs.PassTo(); got != models.NextPlayerFallback {
		t.Fatalf("PassTo = %q, want fallback", got)
	}
}

func TestNextNight(t *testing.T) {
	ctx := context.Background()
	gs, store := newTestService(t)
	for want := 1; want <= 3; want++ {
		got, err := gs.NextNight(ctx)
		if err != nil || got != want {
			t.Fatalf("NextNight = %d, %v, want %d", got, err, want)
		}
	}
	var gameData models.GameData
	_ = json.Unmarshal([]byte(stored(t, store, GameDataKey)), &gameData)
	if gameData.CurrentNight != 3 {
		t.Fatalf("stored currentNight = %d", gameData.CurrentNight)
	}
}

type failingStore struct {
	*storage.MemoryStore
	failSet bool
}

var errBoom = errors.New("boom")

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errBoom
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func TestStorageFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: storage.NewMemoryStore()}
	gs, err := NewGameService(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGameService: %v", err)
	}
	defer gs.Close()

	store.failSet = true
	if err := gs.UpdatePage(ctx, models.PageNight); !errors.Is(err, errBoom) {
		t.Fatalf("UpdatePage err = %v, want errBoom", err)
	}
	// 内存状态仍然更新
	if got := gs.CurrentPage(); got != models.PageNight {
		t.Fatalf("CurrentPage = %q", got)
	}
}
