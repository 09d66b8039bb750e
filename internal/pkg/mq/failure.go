// internal/pkg/mq/failure.go
package mq

import (
	"context"
	"fmt"
	"strconv"

	"granary/internal/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// 死信消息头，记录消息的来源和失败原因，便于 DLT 消费端定位问题。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionFqcn     = "x-exception-fqcn"
	HeaderExceptionMessage  = "x-exception-message"
)

// FailureHandler 把无法处理的消息转移到死信主题（DLT）。
// 只用于“毒消息”——反序列化失败、未知任务名这类重试也救不回来的情况；
// 业务失败不走这里，而是作为结构化结果正常返回。
type FailureHandler struct {
	dltWriter *kafka.Writer
}

func NewFailureHandler(dltWriter *kafka.Writer) *FailureHandler {
	return &FailureHandler{dltWriter: dltWriter}
}

// Handle 把失败消息连同上下文头写入 DLT。写入失败只记日志，
// 不能让 DLT 故障反过来阻塞正常消费。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	dltMsg := kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: append(msg.Headers, dltHeaders(msg, cause)...),
	}
	InjectTraceContext(ctx, &dltMsg.Headers)

	if err := h.dltWriter.WriteMessages(ctx, dltMsg); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("original_topic", msg.Topic).
			Int64("original_offset", msg.Offset).
			Msg("Failed to move message to DLT")
		return
	}
	logger.Ctx(ctx).Warn().
		Str("original_topic", msg.Topic).
		Int64("original_offset", msg.Offset).
		Str("cause", cause.Error()).
		Msg("Message moved to DLT")
}

func dltHeaders(msg kafka.Message, cause error) []kafka.Header {
	return []kafka.Header{
		{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", cause))},
		{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
	}
}
