package logger

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ = Describe("Logger environment configs", func() {
	type expected struct {
		level        zapcore.Level
		development  bool
		quiet        bool
		encoding     string
		outputs      []string
		errorOutputs []string
	}

	DescribeTable("builds the config for each environment",
		func(build func() zap.Config, want expected) {
			cfg := build()

			Expect(cfg.Level.Level()).To(Equal(want.level))
			Expect(cfg.Development).To(Equal(want.development))
			Expect(cfg.DisableCaller).To(Equal(want.quiet))
			Expect(cfg.DisableStacktrace).To(Equal(want.quiet))
			Expect(cfg.Encoding).To(Equal(want.encoding))
			if len(want.outputs) == 0 {
				Expect(cfg.OutputPaths).To(BeEmpty())
				Expect(cfg.ErrorOutputPaths).To(BeEmpty())
			} else {
				Expect(cfg.OutputPaths).To(Equal(want.outputs))
				Expect(cfg.ErrorOutputPaths).To(Equal(want.errorOutputs))
			}
		},
		Entry("production", newProductionLoggerConfig, expected{
			level: zap.InfoLevel, encoding: "json", outputs: []string{"stdout"}, errorOutputs: []string{"stderr"},
		}),
		Entry("staging", newStagingLoggerConfig, expected{
			level: zap.InfoLevel, quiet: true, encoding: "json", outputs: []string{"stdout"}, errorOutputs: []string{"stderr"},
		}),
		Entry("development", newDevelopmentLoggerConfig, expected{
			level: zap.DebugLevel, development: true, quiet: true, encoding: "console", outputs: []string{"stdout"}, errorOutputs: []string{"stderr"},
		}),
		Entry("test", newTestLoggerConfig, expected{
			level: zap.InfoLevel, encoding: "json",
		}),
	)

	Describe("#newTestLoggerConfig", func() {
		It("builds a logger with no sinks that still accepts info entries", func() {
			cfg := newTestLoggerConfig()
			Expect(cfg.OutputPaths).To(BeEmpty())
			Expect(cfg.ErrorOutputPaths).To(BeEmpty())

			zapLogger, err := cfg.Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(zapLogger.Core().Enabled(zapcore.InfoLevel)).To(BeTrue())
			Expect(zapLogger.Core().Enabled(zapcore.DebugLevel)).To(BeFalse())

			l := &Logger{wrappedLogger: zapLogger}
			Expect(func() {
				l.With(map[string]string{"reference": "sig-1"}).Info("settling")
			}).NotTo(Panic())
			Expect(l.Sync()).To(Succeed())
		})
	})
})
