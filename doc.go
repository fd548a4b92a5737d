// Package sandchest 是 Sandchest 沙箱平台的 Go SDK。
//
// 客户端围绕沙箱生命周期组织：创建、等待就绪、执行命令、
// 读写文件、派生副本、登记产物，最后停止或销毁。
//
//	client, err := sandchest.NewClient(&sandchest.Config{APIKey: "sk-..."})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	sandbox, err := client.CreateAndWait(ctx, sandchest.CreateParams{Image: "python:3.12"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sandbox.Destroy(ctx)
//
//	result, err := sandbox.Exec(ctx, "echo hello")
//
// 命令执行有三种形态：Exec 阻塞直到完成，ExecCallback 在输出
// 到达时实时回调，ExecStream 返回事件流的拉取句柄。
//
// 所有请求失败都归类为 *Error，可以用 errors.As 或
// IsNotFound、IsRateLimited 等谓词判断。幂等的失败会按指数退避
// 自动重试，变更请求自动携带幂等键，重试不会重复生效。
package sandchest
