// connectapp 连接节点，打印链信息与运行时 API 列表后断开
package main

func main() {
	Execute()
}
