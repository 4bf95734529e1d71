package assets

// Loader decodes one kind of asset file. Implementations are stateless and
// safe to call from several goroutines.
type Loader interface {
	Load(path string) (any, error)
}
