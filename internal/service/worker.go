package service

import (
	"context"
	"time"

	"ibisync/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

// QueueWorker drives ProcessQueue on a ticker. When an etcd client is wired
// it takes a distributed mutex per round so overlapping instances never run
// concurrent passes; single-instance deployments may run without etcd.
type QueueWorker struct {
	queue      *QueueService
	etcdClient *clientv3.Client
	interval   time.Duration
}

func NewQueueWorker(queue *QueueService, etcdClient *clientv3.Client, interval time.Duration) *QueueWorker {
	return &QueueWorker{
		queue:      queue,
		etcdClient: etcdClient,
		interval:   interval,
	}
}

func (w *QueueWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	logger.Info("queue worker started", zap.Duration("interval", w.interval))

	var mutex *concurrency.Mutex
	if w.etcdClient != nil {
		session, err := concurrency.NewSession(w.etcdClient, concurrency.WithTTL(10))
		if err != nil {
			logger.Error("failed to create etcd concurrency session", zap.Error(err))
			return
		}
		defer session.Close()
		mutex = concurrency.NewMutex(session, "/ibis/locks/queue-worker")
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("queue worker stopped")
			return
		case <-ticker.C:
			if mutex != nil {
				lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := mutex.Lock(lockCtx)
				cancel()
				if err != nil {
					if err == context.DeadlineExceeded {
						logger.Debug("processing skipped, another instance holds the lock")
					} else {
						logger.Error("failed to acquire queue worker lock", zap.Error(err))
					}
					continue
				}
			}

			res, err := w.queue.ProcessQueue(ctx)
			if err != nil {
				logger.Error("queue pass failed", zap.Error(err))
			} else if res.Processed > 0 || res.Failed > 0 {
				logger.Info("queue pass finished",
					zap.Int("processed", res.Processed),
					zap.Int("failed", res.Failed))
			}

			if mutex != nil {
				if err := mutex.Unlock(context.Background()); err != nil {
					logger.Warn("failed to release queue worker lock", zap.Error(err))
				}
			}
		}
	}
}
