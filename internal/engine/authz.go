package engine

import "github.com/wolfeidau/planpoker/internal/models"

// Capability checks run once at the top of each operation.

func requireActive(session *models.Session) error {
	if !session.IsActive() {
		return ErrSessionInactive
	}
	return nil
}

func requireParticipant(session *models.Session, userID string) (*models.Participant, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	p := session.Participant(userID)
	if p == nil {
		return nil, ErrNotParticipant
	}
	return p, nil
}

func requireHost(session *models.Session, userID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if !session.IsHost(userID) {
		return ErrNotHost
	}
	return nil
}

func requireStory(session *models.Session, storyID string) (*models.Story, error) {
	story := session.Story(storyID)
	if story == nil {
		return nil, ErrStoryNotFound
	}
	return story, nil
}
