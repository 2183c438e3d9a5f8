// Package eventbus 将 SSE 事件镜像到外部消息通道，供仪表盘或审计消费者订阅。
// 发布失败只影响镜像，不影响客户端的事件流。
package eventbus
