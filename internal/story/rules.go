package story

import "github.com/wrongjunior/storybridge/internal/domain"

// Rule - реакция сюжета на момент игры. When получает событие и свежий снимок;
// если условие выполнено, Then возвращает команды для игрового слоя.
type Rule struct {
	Name string
	On   domain.EventKind
	When func(snap domain.Snapshot) bool
	Then func(snap domain.Snapshot) []domain.Command
}

func (r Rule) matches(event domain.Event, snap domain.Snapshot) bool {
	if r.On != domain.EventUnknown && r.On != event.Kind {
		return false
	}
	return r.When == nil || r.When(snap)
}

// DefaultRules - сценарий лобби: после подключения друг входит в лобби,
// а на следующем переключении сети, если друг уже в лобби, становится готовым.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "friend-joins-on-connect",
			On:   domain.EventNetworkToggled,
			When: func(s domain.Snapshot) bool { return s.Connected && !s.FriendInLobby },
			Then: func(domain.Snapshot) []domain.Command {
				return []domain.Command{domain.SetFriendInLobby(true)}
			},
		},
		{
			Name: "friend-ready-in-lobby",
			On:   domain.EventNetworkToggled,
			When: func(s domain.Snapshot) bool { return s.Connected && s.FriendInLobby && !s.FriendReady },
			Then: func(domain.Snapshot) []domain.Command {
				return []domain.Command{domain.SetFriendReady(true)}
			},
		},
	}
}
