package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/allisson/topogate/internal/config"
	cryptoService "github.com/allisson/topogate/internal/crypto/service"
	keystoreFile "github.com/allisson/topogate/internal/keystore/repository/file"
	keystoreMySQL "github.com/allisson/topogate/internal/keystore/repository/mysql"
	keystorePostgreSQL "github.com/allisson/topogate/internal/keystore/repository/postgresql"
	keystoreService "github.com/allisson/topogate/internal/keystore/service"
	"github.com/allisson/topogate/internal/master"
	"github.com/allisson/topogate/internal/services"
)

// keystoreDirName is the file keystore directory inside the security directory.
const keystoreDirName = "keystores"

// KMSService returns the KMS service used to protect the master secret.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// MasterFileStore returns the store of the persisted master file.
func (c *Container) MasterFileStore() *master.FileStore {
	return master.NewFileStore(
		c.config.SecurityDir,
		c.config.MasterKMSKeyURI,
		c.config.MasterFilePassphrase,
		c.KMSService(),
	)
}

// MasterService returns the master secret service selected by MASTER_PROVIDER.
func (c *Container) MasterService() (master.Service, error) {
	var err error
	c.masterServiceInit.Do(func() {
		c.masterService, err = c.initMasterService()
		if err != nil {
			c.storeError("masterService", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.loadError("masterService"); storedErr != nil {
		return nil, storedErr
	}
	return c.masterService, nil
}

// KeystoreRepository returns the keystore persistence selected by KEYSTORE_BACKEND.
func (c *Container) KeystoreRepository() (keystoreService.Repository, error) {
	var err error
	c.keystoreRepositoryInit.Do(func() {
		c.keystoreRepository, err = c.initKeystoreRepository()
		if err != nil {
			c.storeError("keystoreRepository", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.loadError("keystoreRepository"); storedErr != nil {
		return nil, storedErr
	}
	return c.keystoreRepository, nil
}

// Registry returns the service registry. Callers run Init and Start themselves.
func (c *Container) Registry() (*services.Registry, error) {
	var err error
	c.registryInit.Do(func() {
		c.registry, err = c.initRegistry()
		if err != nil {
			c.storeError("registry", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.loadError("registry"); storedErr != nil {
		return nil, storedErr
	}
	return c.registry, nil
}

func (c *Container) initMasterService() (master.Service, error) {
	switch c.config.MasterProvider {
	case config.MasterProviderCLI:
		return master.NewCLIService(c.MasterFileStore(), master.CLIConfig{
			Generate:  c.config.MasterGenerate,
			StartedAt: time.Now(),
		}, c.Logger()), nil
	case config.MasterProviderKMS:
		return master.NewKMSService(
			c.config.MasterKMSKeyURI,
			c.config.MasterSecretCiphertext,
			c.KMSService(),
			c.Logger(),
		), nil
	default:
		return nil, fmt.Errorf("unsupported master provider: %s", c.config.MasterProvider)
	}
}

func (c *Container) initKeystoreRepository() (keystoreService.Repository, error) {
	if c.config.KeystoreBackend == config.KeystoreBackendFile {
		return keystoreFile.NewRepository(filepath.Join(c.config.SecurityDir, keystoreDirName)), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for keystore repository: %w", err)
	}
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for keystore repository: %w", err)
	}

	switch c.config.KeystoreBackend {
	case config.KeystoreBackendPostgres:
		return keystorePostgreSQL.NewRepository(db, txManager), nil
	case config.KeystoreBackendMySQL:
		return keystoreMySQL.NewRepository(db, txManager), nil
	default:
		return nil, fmt.Errorf("unsupported keystore backend: %s", c.config.KeystoreBackend)
	}
}

func (c *Container) initRegistry() (*services.Registry, error) {
	algorithm, err := c.config.Algorithm()
	if err != nil {
		return nil, fmt.Errorf("invalid crypto algorithm: %w", err)
	}
	masterService, err := c.MasterService()
	if err != nil {
		return nil, fmt.Errorf("failed to get master service for registry: %w", err)
	}
	repository, err := c.KeystoreRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get keystore repository for registry: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for registry: %w", err)
	}

	return services.NewRegistry(services.Config{
		TopologyDir:      c.config.TopologyDir,
		DeploymentDir:    c.config.DeploymentDir,
		PollInterval:     c.config.TopologyPollInterval,
		DeployMaxRetries: c.config.DeployIOMaxRetries,
		Algorithm:        algorithm,
		SkipDeployment:   c.skipDeployment,
	}, services.Dependencies{
		Master:             masterService,
		KeystoreRepository: repository,
		Metrics:            businessMetrics,
		Logger:             c.Logger(),
	}), nil
}
