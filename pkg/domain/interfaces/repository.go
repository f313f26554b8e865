package interfaces

// Repository defines the interface for data persistence
type Repository interface {
	Connection() ConnectionRepository
	SyncJob() SyncJobRepository
	Project() ProjectRepository
	Issue() IssueRepository
	User() UserRepository
	Status() StatusRepository

	Close() error
}
