package models

// GameMode 配置模式，决定推荐的角色组合
type GameMode string

const (
	ClassicMode  GameMode = "classic"  // 经典模式
	StandardMode GameMode = "standard" // 标准模式
)

// Role 游戏角色
type Role string

const (
	Werewolf Role = "werewolf" // 狼人
	Villager Role = "villager" // 村民
	Witch    Role = "witch"    // 女巫
	Seer     Role = "seer"     // 预言家
	Hunter   Role = "hunter"   // 猎人
	Guardian Role = "guardian" // 守卫
)

// Known 是否为可识别的角色
func (r Role) Known() bool {
	switch r {
	case Werewolf, Villager, Witch, Seer, Hunter, Guardian:
		return true
	}
	return false
}

// 页面标识，服务本身不校验页面跳转
const (
	PageWelcome    = "welcome"
	PageGameSetup  = "gameSetup"
	PagePassToNext = "passToNext"
	PageRoleReveal = "roleReveal"
	PageNight      = "night"
)

// NextPlayerFallback 游标越过名单时的提示称呼
const NextPlayerFallback = "the next player"

// GameData 游戏进度
type GameData struct {
	Players      []string `json:"players"`
	Roles        []string `json:"roles"`
	CurrentIndex int      `json:"currentIndex"`
	CurrentPage  string   `json:"currentPage"`
	CurrentNight int      `json:"currentNight"`
}

// NewGameData 初始状态
func NewGameData() *GameData {
	return &GameData{
		Players:     make([]string, 0),
		Roles:       make([]string, 0),
		CurrentPage: PageWelcome,
	}
}

// Clone 深拷贝
func (g *GameData) Clone() GameData {
	return GameData{
		Players:      append(make([]string, 0, len(g.Players)), g.Players...),
		Roles:        append(make([]string, 0, len(g.Roles)), g.Roles...),
		CurrentIndex: g.CurrentIndex,
		CurrentPage:  g.CurrentPage,
		CurrentNight: g.CurrentNight,
	}
}

// WerewolfData 狼人及其击杀记录
type WerewolfData struct {
	Name   string   `json:"name"`
	Killed []string `json:"Killed"`
}

// VillagerData 村民
type VillagerData struct {
	Name string `json:"name"`
}

// WitchData 女巫，空字符串表示未使用
type WitchData struct {
	Name     string `json:"name"`
	Poison   string `json:"poison"`
	Potion   string `json:"potion"`
	KilledBy string `json:"killedBy"`
}

// SeerData 预言家
type SeerData struct {
	Name     string `json:"name"`
	KilledBy string `json:"killedBy"`
}

// HunterData 猎人
type HunterData struct {
	Name       string `json:"name"`
	Retaliated string `json:"retaliated"`
	KilledBy   string `json:"killedBy"`
}

// GuardianData 守卫
type GuardianData struct {
	Name       string `json:"name"`
	Protecting string `json:"protecting"`
	KilledBy   string `json:"killedBy"`
}

// RoleData 按角色归类的夜晚行动状态，未分配的角色不出现在JSON中
type RoleData struct {
	Werewolves []WerewolfData `json:"werewolves,omitempty"`
	Villagers  []VillagerData `json:"villagers,omitempty"`
	Witch      *WitchData     `json:"witch,omitempty"`
	Seer       *SeerData      `json:"seer,omitempty"`
	Hunter     *HunterData    `json:"hunter,omitempty"`
	Guardian   *GuardianData  `json:"guardian,omitempty"`
}

// Clone 深拷贝
func (r *RoleData) Clone() RoleData {
	out := RoleData{}
	if r.Werewolves != nil {
		out.Werewolves = make([]WerewolfData, len(r.Werewolves))
		for i, w := range r.Werewolves {
			out.Werewolves[i] = WerewolfData{
				Name:   w.Name,
				Killed: append(make([]string, 0, len(w.Killed)), w.Killed...),
			}
		}
	}
	if r.Villagers != nil {
		out.Villagers = append(make([]VillagerData, 0, len(r.Villagers)), r.Villagers...)
	}
	if r.Witch != nil {
		w := *r.Witch
		out.Witch = &w
	}
	if r.Seer != nil {
		s := *r.Seer
		out.Seer = &s
	}
	if r.Hunter != nil {
		h := *r.Hunter
		out.Hunter = &h
	}
	if r.Guardian != nil {
		g := *r.Guardian
		out.Guardian = &g
	}
	return out
}
