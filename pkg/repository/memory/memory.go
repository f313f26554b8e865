package memory

import (
	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
	connection *connectionRepository
	syncJob    *syncJobRepository
	project    *projectRepository
	issue      *issueRepository
	user       *userRepository
	status     *statusRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		connection: newConnectionRepository(),
		syncJob:    newSyncJobRepository(),
		project:    newProjectRepository(),
		issue:      newIssueRepository(),
		user:       newUserRepository(),
		status:     newStatusRepository(),
	}
}

func (m *Memory) Connection() interfaces.ConnectionRepository {
	return m.connection
}

func (m *Memory) SyncJob() interfaces.SyncJobRepository {
	return m.syncJob
}

func (m *Memory) Project() interfaces.ProjectRepository {
	return m.project
}

func (m *Memory) Issue() interfaces.IssueRepository {
	return m.issue
}

func (m *Memory) User() interfaces.UserRepository {
	return m.user
}

func (m *Memory) Status() interfaces.StatusRepository {
	return m.status
}

func (m *Memory) Close() error {
	return nil
}

// entityKey builds the map key for records identified by
// (connection_id, external_id)
func entityKey(connID, externalID string) string {
	return connID + ":" + externalID
}
