/*
Package config provides the centralized configuration for the group load tool.

It holds the compiled defaults shared by the streamer, the generator, the
verifier and the CLI, and resolves them against the .env file, the optional
YAML file and the process environment.
*/
package config

import "time"

// Kafka defaults.
const (
	DefaultBootstrapServers = "localhost:9092"
	DefaultSecurityProtocol = "SASL_SSL"
	DefaultSASLMechanism    = MechanismPlain
	DefaultDevTopic         = "gcp.pss.groupfl.mypbmcaa.dev.groupdetails"
	DefaultQATopic          = "gcp.pss.groupfl.mypbmcaa.qa.groupdetails"
	DefaultConsumerGroup    = "groupload-verifier"
	DefaultEnvFile          = ".env"
)

// Environments.
const (
	EnvDev = "dev"
	EnvQA  = "qa"
)

// Broker drivers.
const (
	DriverConfluent = "confluent"
	DriverKafkaGo   = "kafka-go"
	DriverSarama    = "sarama"
)

// SASL mechanisms.
const (
	MechanismPlain       = "PLAIN"
	MechanismSCRAMSHA256 = "SCRAM-SHA-256"
	MechanismSCRAMSHA512 = "SCRAM-SHA-512"
)

// Producer tuning, mirrored into every driver.
const (
	ProducerAcks                = "all"
	ProducerRetries             = 3
	ProducerBatchSize           = 16384 // Batching target, not a size limit.
	ProducerMaxMessageBytes     = 1000000
	ProducerLingerMs            = 10
	ProducerBufferMemory        = 33554432
	ProducerDeliveryChannelSize = 10000
	ProducerFlushTimeout        = 10 * time.Second
	ProducerCloseTimeout        = 30 * time.Second
)

// Caller-side resubmission defaults. Zero attempts disables resubmission.
const (
	ResubmitMaxAttempts  = 0
	ResubmitInitialDelay = 500 * time.Millisecond
	ResubmitMaxDelay     = 10 * time.Second
	ResubmitMultiplier   = 2.0
)

// Sample generator defaults.
const (
	GeneratorDefaultCompany        = "Sample Corporation"
	GeneratorSendEmployees         = 10
	GeneratorFileEmployees         = 25
	GeneratorSendCount             = 1
	GeneratorFileCount             = 5
	GeneratorMaxMembers            = 5
	GeneratorTerminatedProbability = 0.1
)

// Verifier (topic consumer) defaults.
const (
	VerifierReadTimeout          = 1 * time.Second
	VerifierMaxConsecutiveErrors = 3
	VerifierServiceName          = "groupload-verifier"
)

// Dashboard defaults.
const (
	DashboardUpdateInterval  = 250 * time.Millisecond
	DashboardMaxFailures     = 20
	DashboardMaxHistorySize  = 60
	DashboardSuccessRateGood = 95.0
	DashboardSuccessRateWarn = 80.0
	DashboardMaxRowLength    = 75
	DashboardTruncateSuffix  = "..."
)
