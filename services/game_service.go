package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/qianlnk/werewolf-companion/models"
	"github.com/qianlnk/werewolf-companion/storage"
	"go.uber.org/zap"
)

// 存储中的键名
const (
	GameDataKey = "gameData"
	RoleDataKey = "roleData"
)

var (
	ErrCorruptSession = errors.New("会话数据已损坏")
	ErrSessionClosed  = errors.New("会话已结束")
)

// GameService 单个会话的游戏状态，所有修改都必须经过它的方法
type GameService struct {
	gameData *models.GameData
	roleData *models.RoleData
	pages    *PageStream
	store    storage.Store
	logger   *zap.Logger
	closed   bool
	mutex    sync.RWMutex
}

// GameDataUpdate 按字段更新，nil 表示保持原值；0 和空字符串都会被写入
type GameDataUpdate struct {
	Players      []string `json:"players"`
	Roles        []string `json:"roles"`
	CurrentIndex *int     `json:"currentIndex"`
	CurrentPage  *string  `json:"currentPage"`
	CurrentNight *int     `json:"currentNight"`
}

// NewGameService 从存储恢复会话，没有 gameData 时初始化并保存
func NewGameService(ctx context.Context, store storage.Store, logger *zap.Logger) (*GameService, error) {
	gs := &GameService{
		pages:  NewPageStream(logger),
		store:  store,
		logger: logger,
	}

	raw, err := store.Get(ctx, GameDataKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		gs.gameData = models.NewGameData()
		if err := gs.saveGameData(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", GameDataKey, err)
	default:
		gameData := &models.GameData{}
		if err := json.Unmarshal([]byte(raw), gameData); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSession, GameDataKey, err)
		}
		normalizeGameData(gameData)
		gs.gameData = gameData
	}

	gs.roleData = &models.RoleData{}
	raw, err = store.Get(ctx, RoleDataKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", RoleDataKey, err)
	default:
		if err := json.Unmarshal([]byte(raw), gs.roleData); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSession, RoleDataKey, err)
		}
	}

	return gs, nil
}

// normalizeGameData 把存储里的 null 列表读成空列表
// 本服务写入的列表从不为 null，只有外部写入的数据会在往返后出现 null 变 [] 的差异
func normalizeGameData(g *models.GameData) {
	if g.Players == nil {
		g.Players = make([]string, 0)
	}
	if g.Roles == nil {
		g.Roles = make([]string, 0)
	}
}

// GameData 返回内存中的记录本身，调用方能看到后续修改
func (gs *GameService) GameData() *models.GameData {
	gs.mutex.RLock()
	defer gs.mutex.RUnlock()
	return gs.gameData
}

// RoleData 返回内存中的记录本身
func (gs *GameService) RoleData() *models.RoleData {
	gs.mutex.RLock()
	defer gs.mutex.RUnlock()
	return gs.roleData
}

// Snapshot 返回两份记录的深拷贝
func (gs *GameService) Snapshot() (models.GameData, models.RoleData) {
	gs.mutex.RLock()
	defer gs.mutex.RUnlock()
	return gs.gameData.Clone(), gs.roleData.Clone()
}

// SubscribePages 订阅页面变化
func (gs *GameService) SubscribePages() (<-chan string, func()) {
	return gs.pages.Subscribe()
}

// CurrentPage 当前页面
func (gs *GameService) CurrentPage() string {
	gs.mutex.RLock()
	defer gs.mutex.RUnlock()
	return gs.gameData.CurrentPage
}

// UpdatePage 切换页面
func (gs *GameService) UpdatePage(ctx context.Context, page string) error {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if gs.closed {
		return ErrSessionClosed
	}

	gs.gameData.CurrentPage = page
	gs.pages.Publish(page)
	return gs.saveGameData(ctx)
}

// UpdateGameData 按字段更新游戏进度
func (gs *GameService) UpdateGameData(ctx context.Context, update GameDataUpdate) error {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if gs.closed {
		return ErrSessionClosed
	}

	next := &models.GameData{
		Players:      gs.gameData.Players,
		Roles:        gs.gameData.Roles,
		CurrentIndex: gs.gameData.CurrentIndex,
		CurrentPage:  gs.gameData.CurrentPage,
		CurrentNight: gs.gameData.CurrentNight,
	}
	if update.Players != nil {
		next.Players = append(make([]string, 0, len(update.Players)), update.Players...)
	}
	if update.Roles != nil {
		next.Roles = append(make([]string, 0, len(update.Roles)), update.Roles...)
	}
	if update.CurrentIndex != nil {
		next.CurrentIndex = *update.CurrentIndex
	}
	if update.CurrentPage != nil {
		next.CurrentPage = *update.CurrentPage
	}
	if update.CurrentNight != nil {
		next.CurrentNight = *update.CurrentNight
	}
	gs.gameData = next

	err := gs.saveGameData(ctx)
	gs.pages.Publish(gs.gameData.CurrentPage)
	return err
}

// Reset 回到欢迎页，清空全部数据
func (gs *GameService) Reset(ctx context.Context) error {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if gs.closed {
		return ErrSessionClosed
	}

	gs.gameData = models.NewGameData()
	gs.roleData = &models.RoleData{}
	gs.pages.Publish(gs.gameData.CurrentPage)

	if err := gs.saveGameData(ctx); err != nil {
		return err
	}
	return gs.saveRoleData(ctx)
}

// Restart 保留玩家名单，重新进入配置页
func (gs *GameService) Restart(ctx context.Context) error {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if gs.closed {
		return ErrSessionClosed
	}

	gs.gameData.CurrentIndex = 0
	gs.gameData.CurrentNight = 0
	gs.gameData.CurrentPage = models.PageGameSetup
	gs.gameData.Roles = make([]string, 0)
	gs.roleData = &models.RoleData{}
	gs.pages.Publish(gs.gameData.CurrentPage)

	if err := gs.saveGameData(ctx); err != nil {
		return err
	}
	return gs.saveRoleData(ctx)
}

// AddPlayer 登记玩家和角色
// 只有玩家数少于角色数、且游标已到名单末尾时才追加名字；游标和角色数据总会更新
func (gs *GameService) AddPlayer(ctx context.Context, name, role string) error {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if gs.closed {
		return ErrSessionClosed
	}

	if len(gs.gameData.Players) < len(gs.gameData.Roles) &&
		gs.gameData.CurrentIndex >= len(gs.gameData.Players) {
		gs.gameData.Players = append(gs.gameData.Players, name)
	} else {
		gs.logger.Debug("跳过重复登记", zap.String("name", name), zap.Int("index", gs.gameData.CurrentIndex))
	}
	gs.gameData.CurrentIndex++
	gs.addRoleData(name, models.Role(role))

	if err := gs.saveGameData(ctx); err != nil {
		return err
	}
	return gs.saveRoleData(ctx)
}

// AddRoleData 为玩家建立角色记录，未知角色返回 false 且不做任何修改
func (gs *GameService) AddRoleData(ctx context.Context, name, role string) (bool, error) {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if gs.closed {
		return false, ErrSessionClosed
	}

	if !gs.addRoleData(name, models.Role(role)) {
		return false, nil
	}
	return true, gs.saveRoleData(ctx)
}

func (gs *GameService) addRoleData(name string, role models.Role) bool {
	switch role {
	case models.Werewolf:
		gs.roleData.Werewolves = append(gs.roleData.Werewolves, models.WerewolfData{
			Name:   name,
			Killed: make([]string, 0),
		})
	case models.Villager:
		gs.roleData.Villagers = append(gs.roleData.Villagers, models.VillagerData{Name: name})
	case models.Witch:
		gs.roleData.Witch = &models.WitchData{Name: name}
	case models.Seer:
		gs.roleData.Seer = &models.SeerData{Name: name}
	case models.Hunter:
		gs.roleData.Hunter = &models.HunterData{Name: name}
	case models.Guardian:
		gs.roleData.Guardian = &models.GuardianData{Name: name}
	default:
		gs.logger.Debug("忽略未知角色", zap.String("name", name), zap.String("role", string(role)))
		return false
	}
	return true
}

// PassTo 下一位应当拿到设备的玩家
func (gs *GameService) PassTo() string {
	gs.mutex.RLock()
	defer gs.mutex.RUnlock()

	i := gs.gameData.CurrentIndex
	if i >= 0 && i < len(gs.gameData.Players) && gs.gameData.Players[i] != "" {
		return gs.gameData.Players[i]
	}
	return models.NextPlayerFallback
}

// NextNight 夜晚计数加一
func (gs *GameService) NextNight(ctx context.Context) (int, error) {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if gs.closed {
		return 0, ErrSessionClosed
	}

	gs.gameData.CurrentNight++
	return gs.gameData.CurrentNight, gs.saveGameData(ctx)
}

// Close 结束会话，关闭所有页面订阅
// 之后的修改都返回 ErrSessionClosed，不再写入存储
func (gs *GameService) Close() {
	gs.mutex.Lock()
	gs.closed = true
	gs.mutex.Unlock()

	gs.pages.Close()
}

func (gs *GameService) saveGameData(ctx context.Context) error {
	return gs.save(ctx, GameDataKey, gs.gameData)
}

func (gs *GameService) saveRoleData(ctx context.Context) error {
	return gs.save(ctx, RoleDataKey, gs.roleData)
}

func (gs *GameService) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := gs.store.Set(ctx, key, string(data)); err != nil {
		gs.logger.Error("保存会话数据失败", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
